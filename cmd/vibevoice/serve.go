package main

import (
	"context"
	"errors"

	"github.com/plataforma/vibevoice-launcher/internal/launcher"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Resolve the compute device and run the TTS server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "Listen port (overrides VIBEVOICE_PORT)"},
			&cli.StringFlag{Name: "device", Usage: "auto, cuda, directml, mps or cpu"},
			&cli.StringFlag{Name: "device-index", Usage: "Adapter index for the chosen backend"},
			&cli.StringFlag{Name: "app-dir", Usage: "Directory containing web/app.py"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if c.IsSet("device") {
				cfg.Device.Preference = c.String("device")
			}
			if c.IsSet("device-index") {
				cfg.Device.Index = c.String("device-index")
			}
			if c.IsSet("app-dir") {
				cfg.Server.AppDir = c.String("app-dir")
			}
			if c.IsSet("metrics-addr") {
				cfg.Server.MetricsAddr = c.String("metrics-addr")
			}
			if err := cfg.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			printBanner(c, "Realtime TTS server")
			log := c.App.Metadata["logger"].(*zap.Logger)

			var server *launcher.Server
			app := fx.New(
				fx.Supply(cfg, log),
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
				}),
				launcher.Module,
				fx.Populate(&server),
			)
			if err := app.Err(); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return run(c.Context, app, server, log.Named("serve"))
		},
	}
}

// run starts app, waits for the server to exit or a signal, and maps the outcome to an exit code.
func run(ctx context.Context, app *fx.App, server *launcher.Server, log *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		if serr := server.Err(); serr != nil {
			return exitError(serr)
		}
		return exitError(err)
	}

	sig := <-app.Wait()
	log.Debug("shutting down", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}

	if err := server.Err(); err != nil {
		return exitError(err)
	}
	if sig.ExitCode != 0 {
		return cli.Exit("", sig.ExitCode)
	}
	return nil
}

func exitError(err error) error {
	var startup *launcher.StartupError
	if errors.As(err, &startup) {
		return cli.Exit(startup.Message(), startup.ExitCode())
	}
	return cli.Exit(err.Error(), 1)
}
