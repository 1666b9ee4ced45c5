// Command ttstest synthesizes one phrase against a running server and exits 0 when audio arrived.
// It is configured only through the environment (VIBEVOICE_URL, VIBEVOICE_TEXT, VIBEVOICE_PUSHGATEWAY, ...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/plataforma/vibevoice-launcher/internal/client"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/logger"
	"github.com/plataforma/vibevoice-launcher/internal/metrics"
	"github.com/plataforma/vibevoice-launcher/internal/wav"
	"go.uber.org/zap"
)

const outputName = "test_tts_output"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load("", "")
	if err != nil {
		fmt.Printf("Error: invalid configuration: %s\n", err)
		return 1
	}
	log, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Format)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := client.Request{
		Text:     cfg.Client.Text,
		Voice:    cfg.Client.Voice,
		CFGScale: cfg.Client.CFGScale,
		Steps:    cfg.Client.Steps,
	}
	c := client.New(cfg.Client.URL, cfg.Client.Timeout, log)
	format := wav.Format{SampleRate: cfg.Client.SampleRate, Channels: 1, BitsPerSample: 16}

	fmt.Printf("Text:  %s\n", req.Text)
	fmt.Printf("Voice: %s (cfg=%.2f, steps=%d)\n", req.Voice, req.CFGScale, req.Steps)
	fmt.Printf("Connecting to %s\n\n", c.StreamURL(req))

	report, err := client.Smoke(ctx, c, req, cfg.Client.OutputDir, outputName, format, log)
	if cfg.Metrics.PushGateway != "" {
		if perr := metrics.Push(ctx, cfg.Metrics.PushGateway, "vibevoice_smoke"); perr != nil {
			log.Warn("could not push metrics", zap.Error(perr))
		}
	}
	if err != nil {
		fmt.Printf("TEST FAILED: %s\n", err)
		return 1
	}
	if report.TimedOut {
		fmt.Println("Server stopped sending before closing the stream")
	}

	fmt.Printf("Audio chunks: %d\n", report.Chunks)
	fmt.Printf("Audio size:   %s bytes (%s)\n", humanize.Comma(report.Bytes), humanize.IBytes(uint64(report.Bytes)))
	fmt.Printf("Duration:     %.2f s\n", report.AudioDuration.Seconds())
	fmt.Printf("Saved %s\n", report.PCMPath)
	fmt.Printf("Saved %s\n", report.WAVPath)
	fmt.Println("TEST PASSED")
	return 0
}
