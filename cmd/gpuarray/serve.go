package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/fxnlabs/gpuarray/internal/config"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/metrics"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve runtime metrics and device information over HTTP",
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			log := appLogger(c)
			app := fx.New(serveOptions(cfg, log), fx.Invoke(func(*http.Server) {}))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

// serveOptions wires the runtime, the class registry and the HTTP server
// into an fx application.
func serveOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newManager,
			newModule,
			newMux,
			newServer,
		),
	)
}

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	manager, err := gpu.NewManager(log, cfg.ManagerConfig())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return manager.Cleanup()
		},
	})
	return manager, nil
}

func newModule(manager *gpu.Manager, log *zap.Logger) (*registry.Module, error) {
	return registry.NewModule(moduleName, manager.Runtime(), log)
}

type infoResponse struct {
	Runtime           string  `json:"runtime"`
	Device            string  `json:"device"`
	ComputeCapability string  `json:"computeCapability"`
	DriverVersion     string  `json:"driverVersion"`
	RuntimeVersion    string  `json:"runtimeVersion"`
	FreeMemory        int64   `json:"freeMemory,omitempty"`
	TotalMemory       int64   `json:"totalMemory,omitempty"`
	UnlimitedMemory   bool    `json:"unlimitedMemory,omitempty"`
	Classes           []class `json:"classes"`
}

type class struct {
	Name     string `json:"name"`
	Format   string `json:"format"`
	ItemSize int    `json:"itemSize"`
}

func newMux(cfg *config.Config, manager *gpu.Manager, module *registry.Module, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.Handle("/info", metrics.Middleware(infoHandler(manager, module, log), "/info"))
	return mux
}

func infoHandler(manager *gpu.Manager, module *registry.Module, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		info := manager.GetDeviceInfo()
		resp := infoResponse{
			Runtime:           manager.RuntimeType(),
			Device:            info.Name,
			ComputeCapability: info.ComputeCapability,
			DriverVersion:     info.DriverVersion,
			RuntimeVersion:    info.RuntimeVersion,
		}
		if rt := manager.Runtime(); rt != nil {
			// a total of 0 means the runtime has no memory limit
			if free, total, st := rt.MemInfo(); st.OK() && total > 0 {
				resp.FreeMemory, resp.TotalMemory = free, total
			} else if st.OK() {
				resp.UnlimitedMemory = true
			}
		}
		for _, c := range module.Classes() {
			resp.Classes = append(resp.Classes, class{Name: c.Name(), Format: c.Format(), ItemSize: c.ItemSize()})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error("failed to encode info response", zap.Error(err))
		}
	})
}

func newServer(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux, log *zap.Logger) *http.Server {
	srv := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Starting server on", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
