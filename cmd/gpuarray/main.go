package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fxnlabs/gpuarray/internal/config"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/logger"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const moduleName = "gpuarray"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if log, ok := app.Metadata["logger"].(*zap.Logger); ok {
			log.Fatal("failed to run app", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "gpuarray",
		Usage:    "Inspect and exercise typed device arrays",
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"GPUARRAY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "Override runtime.backend (auto, cuda or host)",
				EnvVars: []string{"GPUARRAY_BACKEND"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["logger"] = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			infoCommand(),
			typesCommand(),
			roundTripCommand(),
			serveCommand(),
		},
	}
}

// loadConfig reads the --config file. A missing default file is not an
// error: the built-in defaults apply instead.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if errors.Is(err, fs.ErrNotExist) && !c.IsSet("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if backend := c.String("backend"); backend != "" {
		cfg.Runtime.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func appLogger(c *cli.Context) *zap.Logger {
	return c.App.Metadata["logger"].(*zap.Logger)
}

// withModule selects a runtime from the loaded config, registers the array
// classes on it and tears the runtime down once fn returns.
func withModule(c *cli.Context, fn func(*gpu.Manager, *registry.Module) error) error {
	log := appLogger(c)
	manager, err := gpu.NewManager(log, appConfig(c).ManagerConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Cleanup(); err != nil {
			log.Warn("runtime cleanup failed", zap.Error(err))
		}
	}()

	module, err := registry.NewModule(moduleName, manager.Runtime(), log)
	if err != nil {
		return err
	}
	return fn(manager, module)
}
