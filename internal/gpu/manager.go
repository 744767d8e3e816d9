package gpu

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Runtime backend names accepted by ManagerConfig.Backend.
const (
	BackendAuto = "auto"
	BackendCUDA = "cuda"
	BackendHost = "host"
)

var errCUDAUnavailable = errors.New("CUDA runtime not available (no device, or built without -tags cuda)")

// ManagerConfig selects and parameterizes the runtime a Manager drives.
type ManagerConfig struct {
	// Backend is one of BackendAuto, BackendCUDA or BackendHost.
	Backend string
	// Device is the CUDA device ordinal.
	Device int
	// HostCapacity bounds the host runtime's simulated memory; 0 is unlimited.
	HostCapacity int64
	// Instrument wraps the selected runtime with metrics and status logging.
	Instrument bool
}

// Manager handles runtime selection and lifecycle
type Manager struct {
	runtime Runtime
	kind    string
	cfg     ManagerConfig
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a new manager and selects the runtime named in cfg
func NewManager(logger *zap.Logger, cfg ManagerConfig) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
	}

	if err := m.detectAndInitialize(); err != nil {
		return nil, err
	}

	return m, nil
}

// detectAndInitialize initializes the configured runtime, falling back to
// the host runtime when the backend is auto and no GPU can be used
func (m *Manager) detectAndInitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.cfg.Backend {
	case BackendAuto, BackendCUDA:
		cudaRuntime := m.tryCreateCUDARuntime()
		if cudaRuntime != nil && cudaRuntime.IsAvailable() {
			err := cudaRuntime.Initialize()
			if err == nil {
				m.setRuntime(cudaRuntime, BackendCUDA)
				return nil
			}
			// If initialization failed, try cleanup
			_ = cudaRuntime.Cleanup()
			if m.cfg.Backend == BackendCUDA {
				return fmt.Errorf("failed to initialize CUDA runtime: %w", err)
			}
			m.logger.Warn("CUDA runtime failed to initialize, falling back to host", zap.Error(err))
		} else if m.cfg.Backend == BackendCUDA {
			return errCUDAUnavailable
		}
	case BackendHost:
	default:
		return fmt.Errorf("unknown runtime backend %q", m.cfg.Backend)
	}

	// Fall back to the host runtime
	hostRuntime := NewHostRuntime(m.logger.Named("runtime"), m.cfg.HostCapacity)
	if err := hostRuntime.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize host runtime: %w", err)
	}
	m.setRuntime(hostRuntime, BackendHost)
	return nil
}

func (m *Manager) setRuntime(rt Runtime, kind string) {
	if m.cfg.Instrument {
		rt = Instrument(rt, m.logger)
	}
	m.runtime = rt
	m.kind = kind
	m.logger.Info("Runtime selected", zap.String("runtime", kind))
}

// Runtime returns the current runtime
func (m *Manager) Runtime() Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtime
}

// GetDeviceInfo returns device information from the current runtime
func (m *Manager) GetDeviceInfo() DeviceInfo {
	rt := m.Runtime()
	if rt == nil {
		return DeviceInfo{Name: "No runtime available"}
	}
	return rt.GetDeviceInfo()
}

// IsGPUAvailable returns true if a GPU runtime is active
func (m *Manager) IsGPUAvailable() bool {
	return m.RuntimeType() == BackendCUDA
}

// RuntimeType returns a string describing the current runtime type
func (m *Manager) RuntimeType() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.runtime == nil {
		return "none"
	}
	return m.kind
}

// Cleanup releases resources held by the current runtime
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runtime != nil {
		if err := m.runtime.Cleanup(); err != nil {
			return err
		}
		m.runtime = nil
	}
	return nil
}
