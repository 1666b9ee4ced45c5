package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/plataforma/vibevoice-launcher/internal/client"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/wav"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func smokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "smoke",
		Usage:     "Stream one utterance from a running server and save it as PCM and WAV",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Server base URL (ws:// or wss://)"},
			&cli.StringFlag{Name: "voice"},
			&cli.Float64Flag{Name: "cfg", Usage: "Classifier-free guidance scale"},
			&cli.IntFlag{Name: "steps", Usage: "Inference steps"},
			&cli.DurationFlag{Name: "timeout", Usage: "Maximum wait for each message"},
			&cli.StringFlag{Name: "output-dir"},
			&cli.StringFlag{Name: "name", Usage: "Base name of the output files (default: smoke-<run id>)"},
			&cli.DurationFlag{Name: "wait", Usage: "Keep polling /config this long for the server to come up"},
			&cli.StringFlag{Name: "pushgateway", Usage: "Push the run's metrics to this Pushgateway"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			applySmokeFlags(c, cfg)
			log := appLogger(c)

			cl := client.New(cfg.Client.URL, cfg.Client.Timeout, log)
			req := client.Request{
				Text:     cfg.Client.Text,
				Voice:    cfg.Client.Voice,
				CFGScale: cfg.Client.CFGScale,
				Steps:    cfg.Client.Steps,
			}
			format := wav.Format{SampleRate: cfg.Client.SampleRate, Channels: 1, BitsPerSample: 16}

			if err := cl.WaitReady(c.Context, c.Duration("wait"), time.Second); err != nil {
				return cli.Exit(fmt.Sprintf("smoke test failed: %v", err), 1)
			}

			fmt.Fprintf(c.App.Writer, "Connecting to %s\n", cl.StreamURL(req))
			report, err := client.Smoke(c.Context, cl, req, cfg.Client.OutputDir, c.String("name"), format, log)
			pushMetrics(c.Context, cfg, "vibevoice_smoke", log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("smoke test failed: %v", err), 1)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Received %d chunks, %s of audio (%s)\n", report.Chunks, humanize.Bytes(uint64(report.Bytes)), report.AudioDuration)
			fmt.Fprintf(w, "First chunk after %s, total %s\n", report.FirstChunk, report.Duration)
			fmt.Fprintf(w, "Saved %s\n", report.PCMPath)
			fmt.Fprintf(w, "Saved %s\n", report.WAVPath)
			return nil
		},
	}
}

func applySmokeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("url") {
		cfg.Client.URL = c.String("url")
	}
	if c.Args().Present() {
		cfg.Client.Text = strings.Join(c.Args().Slice(), " ")
	}
	if c.IsSet("voice") {
		cfg.Client.Voice = c.String("voice")
	}
	if c.IsSet("cfg") {
		cfg.Client.CFGScale = c.Float64("cfg")
	}
	if c.IsSet("steps") {
		cfg.Client.Steps = c.Int("steps")
	}
	if c.IsSet("timeout") {
		cfg.Client.Timeout = c.Duration("timeout")
	}
	if c.IsSet("output-dir") {
		cfg.Client.OutputDir = c.String("output-dir")
	}
	if c.IsSet("pushgateway") {
		cfg.Metrics.PushGateway = c.String("pushgateway")
	}
}

func voicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "voices",
		Usage: "List the voices offered by a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Server base URL"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			if c.IsSet("url") {
				cfg.Client.URL = c.String("url")
			}
			cl := client.New(cfg.Client.URL, cfg.Client.Timeout, appLogger(c))
			sc, err := cl.Config(c.Context)
			if err != nil {
				appLogger(c).Debug("config request failed", zap.Error(err))
				return cli.Exit(fmt.Sprintf("could not fetch voices: %v", err), 1)
			}
			for _, v := range sc.Voices {
				fmt.Fprintln(c.App.Writer, v)
			}
			return nil
		},
	}
}

// pushMetrics sends this run's metrics to the configured Pushgateway. Failures only warn.
func pushMetrics(ctx context.Context, cfg *config.Config, job string, log *zap.Logger) {
	if cfg.Metrics.PushGateway == "" {
		return
	}
	if err := metrics.Push(ctx, cfg.Metrics.PushGateway, job); err != nil {
		log.Warn("could not push metrics", zap.Error(err))
		return
	}
	log.Debug("pushed metrics", zap.String("gateway", cfg.Metrics.PushGateway), zap.String("job", job))
}
