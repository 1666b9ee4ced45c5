package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func printBanner(c *cli.Context, subtitle string) {
	if c.Bool("no-banner") {
		return
	}
	fmt.Fprintln(c.App.Writer, figure.NewFigure("VibeVoice", "", true).String())
	if subtitle != "" {
		fmt.Fprintln(c.App.Writer, subtitle)
	}
	fmt.Fprintln(c.App.Writer, "-----------------------------------------------")
}

// formatMB renders a size given in megabytes, or "unknown" when it is not reported.
func formatMB(mb int) string {
	if mb <= 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(mb) * 1024 * 1024)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

// printEnv writes env as shell assignments in a stable order.
func printEnv(w io.Writer, env map[string]string) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "   %s=%s\n", k, env[k])
	}
}
