package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"

	"github.com/plataforma/vibevoice-launcher/internal/compat"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/gpu"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the serve command. It expects *config.Config and *zap.Logger to be supplied.
var Module = fx.Module("launcher",
	fx.Provide(
		NewInterpreter,
		NewResolver,
		NewDeviceManager,
		NewOptions,
		NewServer,
	),
	fx.Invoke(Register, RegisterDiagnostics),
)

func NewInterpreter(cfg *config.Config, log *zap.Logger) *pyenv.Interpreter {
	return pyenv.New(cfg.Server.Python, log)
}

func NewResolver(interp *pyenv.Interpreter, log *zap.Logger) *gpu.Resolver {
	return gpu.NewResolver(log, gpu.DefaultBackends(interp, log)...)
}

// NewDeviceManager resolves the device exactly once, while the application is constructed.
func NewDeviceManager(cfg *config.Config, resolver *gpu.Resolver, log *zap.Logger) *gpu.Manager {
	req := gpu.NewRequest(cfg.Device.Preference, cfg.Device.Index, log)
	return gpu.NewManager(context.Background(), resolver, req, log)
}

// NewOptions builds the launch options and installs the compatibility shim when torch needs it.
func NewOptions(lc fx.Lifecycle, cfg *config.Config, manager *gpu.Manager, interp *pyenv.Interpreter, log *zap.Logger) (Options, error) {
	opts := Options{
		AppDir:      cfg.Server.AppDir,
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Model:       cfg.Model,
		Selection:   manager.Selection(),
		StopTimeout: cfg.Server.StopTimeout,
	}

	caps, err := compat.Check(context.Background(), interp)
	if err != nil {
		// preflight reports the interpreter problem with remediation
		log.Warn("could not inspect torch", zap.Error(err))
		return opts, nil
	}
	log.Info("torch detected",
		zap.Bool("installed", caps.TorchInstalled),
		zap.String("version", caps.TorchVersion),
		zap.Bool("xpu", caps.XPU),
		zap.Int("threads", caps.Threads),
	)
	opts.Threads = caps.Threads
	if !caps.NeedsXPUShim() {
		return opts, nil
	}

	dir, err := os.MkdirTemp("", "vibevoice-pyshim-")
	if err != nil {
		return Options{}, err
	}
	if _, err := compat.InstallShim(dir); err != nil {
		_ = os.RemoveAll(dir)
		return Options{}, err
	}
	log.Debug("installed torch.xpu shim", zap.String("dir", dir))
	opts.ShimDir = dir
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return os.RemoveAll(dir)
		},
	})
	return opts, nil
}

// Register runs preflight and starts the server when the application starts. When the child
// exits the application is shut down with the child's exit code.
func Register(lc fx.Lifecycle, shutdowner fx.Shutdowner, server *Server, opts Options, interp *pyenv.Interpreter, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := Preflight(ctx, opts, interp); err != nil {
				server.fail(err)
				return err
			}
			if err := server.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-server.Done()
				code := server.ExitCode()
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					log.Debug("shutdown already in progress", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}

// RegisterDiagnostics serves /metrics and /device when a metrics address is configured.
func RegisterDiagnostics(lc fx.Lifecycle, cfg *config.Config, manager *gpu.Manager, log *zap.Logger) {
	if cfg.Server.MetricsAddr == "" {
		return
	}
	log = log.Named("diagnostics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Instrument("/metrics", metrics.Handler()))
	mux.Handle("/device", metrics.Instrument("/device", DeviceHandler(manager)))
	srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("serving diagnostics", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("diagnostics listener failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// DeviceHandler reports the resolved device as JSON.
func DeviceHandler(manager *gpu.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sel := manager.Selection()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"label":       sel.Label,
			"identifier":  sel.Identifier(),
			"backend":     manager.GetBackendType(),
			"accelerated": manager.IsGPUAvailable(),
			"device":      sel.Device,
		})
	})
}
