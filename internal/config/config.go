package config

import (
	"fmt"
	"os"

	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Runtime struct {
		Backend      string `yaml:"backend"`
		Device       int    `yaml:"device"`
		HostCapacity int64  `yaml:"hostCapacity"`
	} `yaml:"runtime"`
	Metrics struct {
		Enabled       bool   `yaml:"enabled"`
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config
	config.Logger.Verbosity = "info"
	config.Logger.Encoding = logger.EncodingConsole
	config.Runtime.Backend = gpu.BackendAuto
	config.Metrics.Enabled = true
	config.Metrics.ListenAddress = ":9400"
	return &config
}

// LoadConfig reads the YAML file at path. Keys missing from the file keep
// their Default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if _, err := zap.ParseAtomicLevel(c.Logger.Verbosity); err != nil {
		return fmt.Errorf("logger.verbosity: %w", err)
	}
	switch c.Logger.Encoding {
	case "", logger.EncodingJSON, logger.EncodingConsole:
	default:
		return fmt.Errorf("logger.encoding: unknown encoding %q", c.Logger.Encoding)
	}
	switch c.Runtime.Backend {
	case gpu.BackendAuto, gpu.BackendCUDA, gpu.BackendHost:
	default:
		return fmt.Errorf("runtime.backend: must be one of auto, cuda, host; got %q", c.Runtime.Backend)
	}
	if c.Runtime.Device < 0 {
		return fmt.Errorf("runtime.device: must be >= 0, got %d", c.Runtime.Device)
	}
	if c.Runtime.HostCapacity < 0 {
		return fmt.Errorf("runtime.hostCapacity: must be >= 0, got %d", c.Runtime.HostCapacity)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics.listenAddress: required when metrics are enabled")
	}
	return nil
}

// ManagerConfig translates the runtime section for gpu.NewManager.
// Runtimes are instrumented whenever metrics are enabled.
func (c *Config) ManagerConfig() gpu.ManagerConfig {
	return gpu.ManagerConfig{
		Backend:      c.Runtime.Backend,
		Device:       c.Runtime.Device,
		HostCapacity: c.Runtime.HostCapacity,
		Instrument:   c.Metrics.Enabled,
	}
}
