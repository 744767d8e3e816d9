//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/gpuarray/fixtures"
	"github.com/fxnlabs/gpuarray/internal/array"
	"github.com/fxnlabs/gpuarray/internal/config"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/logger"
	"github.com/fxnlabs/gpuarray/internal/metrics"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func loadTemplateConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, fixtures.ConfigTemplate, 0644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestDeviceArray_EndToEnd(t *testing.T) {
	var module *registry.Module
	var manager *gpu.Manager

	app := fxtest.New(t,
		fx.Provide(
			func() *config.Config { return loadTemplateConfig(t) },
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New("debug", cfg.Logger.Encoding)
			},
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
				m, err := gpu.NewManager(log, cfg.ManagerConfig())
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{OnStop: func(context.Context) error { return m.Cleanup() }})
				return m, nil
			},
			func(m *gpu.Manager, log *zap.Logger) (*registry.Module, error) {
				return registry.NewModule("gpuarray", m.Runtime(), log)
			},
		),
		fx.Populate(&module, &manager),
	)

	app.RequireStart()
	defer app.RequireStop()

	t.Logf("runtime: %s (%s)", manager.RuntimeType(), manager.GetDeviceInfo().Name)

	skippedBefore := testutil.ToFloat64(metrics.SkippedOperations.WithLabelValues("to_host"))
	h2dBefore := testutil.ToFloat64(metrics.TransferBytes.WithLabelValues("host_to_device"))
	d2hBefore := testutil.ToFloat64(metrics.TransferBytes.WithLabelValues("device_to_host"))

	class, ok := module.Class("DeviceArray_float32")
	require.True(t, ok)

	a, err := class.NewWithShape([]int{4, 3})
	require.NoError(t, err)

	assert.Equal(t, 12, a.Size())
	assert.Equal(t, []int{12, 4}, a.Strides())

	// transfers before allocation are skipped and counted
	assert.Equal(t, array.Skipped, a.ToHost().Outcome)
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(metrics.SkippedOperations.WithLabelValues("to_host")))

	data, ok := registry.As[float32](a)
	require.True(t, ok)
	for i := range data.HostData() {
		data.HostData()[i] = float32(i) * 1.5
	}

	require.True(t, a.Allocate().OK())
	require.True(t, a.ToDevice().OK())
	clear(data.HostData())
	require.True(t, a.ToHost().OK())
	assert.Equal(t, float32(16.5), data.HostData()[11])

	assert.Equal(t, h2dBefore+48, testutil.ToFloat64(metrics.TransferBytes.WithLabelValues("host_to_device")))
	assert.Equal(t, d2hBefore+48, testutil.ToFloat64(metrics.TransferBytes.WithLabelValues("device_to_host")))

	// wrap the same memory through the buffer protocol and read the device copy into it
	wrapped, err := class.FromBuffer(a.BufferInfo())
	require.NoError(t, err)
	assert.Equal(t, a.HostData().Addr(), wrapped.HostData().Addr())
	require.NoError(t, wrapped.Close())

	moved := a.Move()
	assert.False(t, a.Allocated())
	assert.True(t, moved.Allocated())
	require.NoError(t, moved.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, gpu.StatusSuccess, moved.LastStatus())
}
