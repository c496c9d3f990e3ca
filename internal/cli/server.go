package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/companion_chatbot/internal/server"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// ServerCommand returns a command for server operations
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Server operations",
		Subcommands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Start the companion API server",
				Action: serverStartAction,
			},
		},
	}
}

func serverStartAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		getLogger(ctx).Error("Failed to load configuration", logger.ErrorField(err))
		return err
	}

	log := cfg.NewLogger()
	cfg.LogConfig(log)

	runCtx, cancel := signalContext(ctx.Context, log, cfg.HTTP.ShutdownTimeout+server.ShutdownGrace)
	defer cancel()

	s, err := server.New(runCtx, cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("Starting companion chatbot",
		logger.StringField("version", cfg.Version),
		logger.IntField("port", cfg.HTTP.Port))

	if err := s.Run(runCtx); err != nil {
		log.Error("Server exited with error", logger.ErrorField(err))
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
