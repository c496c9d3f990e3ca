package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	commands "github.com/lewisedginton/companion_chatbot/internal/cli"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "companion",
		Usage:   "Companion chat backend with per-user semantic memory",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level for command diagnostics (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to YAML configuration file; environment variables override it",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			commands.SetLogger(ctx.App, logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  "json",
				Service: "companion-chatbot",
				Output:  ctx.App.ErrWriter,
			}))
			return nil
		},
		Commands: commands.Commands(),
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
