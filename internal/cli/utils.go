package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

const loggerKey = "logger"

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata[loggerKey].(logger.Logger); ok {
			return log
		}
	}

	// Fallback to default logger if not found
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "companion-chatbot",
	})
}

// SetLogger stores log in the app metadata for commands to use.
func SetLogger(app *cli.App, log logger.Logger) {
	if app.Metadata == nil {
		app.Metadata = map[string]interface{}{}
	}
	app.Metadata[loggerKey] = log
}

// loadConfig reads the file named by --config-file, overlaid by the environment.
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, error) {
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM. If shutdown then takes
// longer than grace the process exits.
func signalContext(parent context.Context, log logger.Logger, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))
			cancel()
			time.AfterFunc(grace, func() {
				log.Warn("Force exiting due to timeout")
				os.Exit(1)
			})
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Commands returns every top-level command of the companion CLI.
func Commands() []*cli.Command {
	return []*cli.Command{
		ServerCommand(),
		MemoryCommand(),
		PromptCommand(),
		ConfigCommand(),
	}
}
