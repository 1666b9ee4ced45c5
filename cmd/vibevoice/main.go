package main

import (
	"fmt"
	"os"

	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var (
		configPath string
		envFile    string
		logLevel   string
	)

	return &cli.App{
		Name:  "vibevoice",
		Usage: "Launch and exercise the VibeVoice realtime TTS server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to a YAML configuration file",
				EnvVars:     []string{"VIBEVOICE_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "env-file",
				Value:       ".env",
				Usage:       "Dotenv file loaded before reading the environment",
				Destination: &envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Override the configured log level",
				Destination: &logLevel,
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Do not print the banner",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
			}
			if logLevel != "" {
				cfg.Logger.Verbosity = logLevel
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid logger configuration: %v", err), 1)
			}
			c.App.Metadata["config"] = cfg
			c.App.Metadata["logger"] = zapLogger
			return nil
		},
		After: func(c *cli.Context) error {
			if log, ok := c.App.Metadata["logger"].(*zap.Logger); ok {
				_ = log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			detectCommand(),
			benchCommand(),
			smokeCommand(),
			voicesCommand(),
			configCommands(),
		},
	}
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func appLogger(c *cli.Context) *zap.Logger {
	return c.App.Metadata["logger"].(*zap.Logger).Named("cli")
}
