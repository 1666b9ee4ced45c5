package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plataforma/vibevoice-launcher/internal/wav"
	"go.uber.org/zap"
)

// ErrNoAudio means the server produced no audio for the smoke request.
var ErrNoAudio = errors.New("no audio received")

// Report is the outcome of a smoke run.
type Report struct {
	Result
	PCMPath string
	WAVPath string
	// AudioDuration is the playback length of the received audio.
	AudioDuration time.Duration
}

// Smoke synthesizes req once and writes the raw PCM and a WAV copy into outDir,
// named after name or the run id when name is empty. It succeeds iff audio was received.
func Smoke(ctx context.Context, c *Client, req Request, outDir, name string, format wav.Format, log *zap.Logger) (Report, error) {
	audio, result, err := c.Synthesize(ctx, req)
	report := Report{Result: result}
	if err != nil {
		return report, err
	}
	if len(audio) == 0 {
		return report, ErrNoAudio
	}

	if name == "" {
		name = "smoke-" + result.RunID[:8]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}

	report.PCMPath = filepath.Join(outDir, name+".pcm")
	if err := os.WriteFile(report.PCMPath, audio, 0o644); err != nil {
		return report, fmt.Errorf("failed to write pcm: %w", err)
	}
	report.WAVPath = filepath.Join(outDir, name+".wav")
	if err := wav.WriteFile(report.WAVPath, audio, format); err != nil {
		return report, fmt.Errorf("failed to write wav: %w", err)
	}
	report.AudioDuration = wav.Duration(len(audio), format)

	log.Info("smoke test passed",
		zap.String("run", result.RunID),
		zap.Int("chunks", result.Chunks),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("audio", report.AudioDuration),
		zap.String("wav", report.WAVPath),
	)
	return report, nil
}
