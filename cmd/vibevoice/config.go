package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"github.com/urfave/cli/v2"
)

func configCommands() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a documented configuration template",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "config.yaml"},
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("output")
					flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
					if c.Bool("force") {
						flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
					}
					f, err := os.OpenFile(path, flags, 0o644)
					if errors.Is(err, fs.ErrExist) {
						return cli.Exit(fmt.Sprintf("%s already exists, use --force to overwrite it", path), 1)
					}
					if err != nil {
						return err
					}
					if _, err := f.Write(fixtures.ConfigTemplate); err != nil {
						f.Close()
						return err
					}
					if err := f.Close(); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective device and server settings",
				Action: func(c *cli.Context) error {
					cfg := appConfig(c)
					w := c.App.Writer
					fmt.Fprintf(w, "model:  %s\n", cfg.Model)
					fmt.Fprintf(w, "server: %s:%d (app dir %s, python %s)\n", cfg.Server.Host, cfg.Server.Port, cfg.Server.AppDir, cfg.Server.Python)
					fmt.Fprintf(w, "device: %s index=%q\n", cfg.Device.Preference, cfg.Device.Index)
					fmt.Fprintf(w, "client: %s voice=%s cfg=%.2f steps=%d\n", cfg.Client.URL, cfg.Client.Voice, cfg.Client.CFGScale, cfg.Client.Steps)
					return nil
				},
			},
		},
	}
}
