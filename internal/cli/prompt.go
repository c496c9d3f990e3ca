package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/internal/server"
	"github.com/lewisedginton/companion_chatbot/internal/sentiment"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// PromptCommand returns a command for previewing the system prompt
func PromptCommand() *cli.Command {
	return &cli.Command{
		Name:    "prompt",
		Aliases: []string{"p"},
		Usage:   "Prompt operations",
		Subcommands: []*cli.Command{
			{
				Name:      "preview",
				Usage:     "Render the system prompt a message would be answered with",
				ArgsUsage: "<message>",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{Name: "stage", Usage: "Relationship stage (acquaintance, friend, partner)"},
					&cli.StringSliceFlag{Name: "trait", Usage: "Personality trait, repeatable"},
					&cli.BoolFlag{Name: "skip-sentiment", Usage: "Use a neutral mood instead of calling the classifier"},
				},
				Action: promptPreviewAction,
			},
		},
	}
}

func promptPreviewAction(ctx *cli.Context) error {
	message, err := argsText(ctx, "message")
	if err != nil {
		return err
	}

	return withComponents(ctx, func(cfg *appconfig.AppConfig, c *server.Components, _ logger.Logger) error {
		memories, err := c.Memories.GetRelevantMemories(ctx.Context, ctx.String("user"), message, cfg.Memory.TopK)
		if err != nil {
			return fmt.Errorf("failed to retrieve memories: %w", err)
		}

		mood := sentiment.NeutralSummary()
		if !ctx.Bool("skip-sentiment") {
			mood = c.Sentiment.Analyze(ctx.Context, message)
		}

		prompt := c.Prompts.Build(ctx.String("stage"), memories, mood, ctx.StringSlice("trait"))
		_, _ = fmt.Fprintln(ctx.App.Writer, prompt)
		return nil
	})
}
