package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

const redacted = "[redacted]"

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration as YAML with secrets redacted",
				Action: configShowAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)
	log.Info("Validating configuration")

	if _, err := loadConfig(ctx); err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return err
	}

	log.Info("Configuration validation passed")
	_, _ = fmt.Fprintln(ctx.App.Writer, "Configuration is valid")
	return nil
}

func configShowAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(redact(*cfg))
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, _ = ctx.App.Writer.Write(out)
	return nil
}

// redact blanks credentials. cfg is a copy.
func redact(cfg appconfig.AppConfig) appconfig.AppConfig {
	for _, secret := range []*string{
		&cfg.Anthropic.APIKey,
		&cfg.OpenAI.APIKey,
		&cfg.Gemini.APIKey,
		&cfg.Sentiment.HuggingFaceToken,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return cfg
}
