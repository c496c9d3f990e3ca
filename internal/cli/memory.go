package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/internal/memory_service"
	"github.com/lewisedginton/companion_chatbot/internal/server"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

var userFlag = &cli.StringFlag{
	Name:     "user",
	Aliases:  []string{"u"},
	Usage:    "User whose memories to use",
	Required: true,
}

// MemoryCommand returns a command for inspecting and seeding user memories
func MemoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "memory",
		Aliases: []string{"m"},
		Usage:   "Memory operations",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Store a memory for a user",
				ArgsUsage: "<text>",
				Flags:     []cli.Flag{userFlag},
				Action:    memoryAddAction,
			},
			{
				Name:      "search",
				Usage:     "Find the memories nearest to a query",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					userFlag,
					&cli.IntFlag{Name: "k", Usage: "Number of memories to return (default from MEMORY_TOP_K)"},
				},
				Action: memorySearchAction,
			},
			{
				Name:   "list",
				Usage:  "List a user's memories in the order they were stored",
				Flags:  []cli.Flag{userFlag},
				Action: memoryListAction,
			},
		},
	}
}

// withComponents loads configuration and builds the domain services for one command.
func withComponents(ctx *cli.Context, fn func(cfg *appconfig.AppConfig, c *server.Components, log logger.Logger) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	// command output goes to the app writer, logs to stderr
	log := logger.NewLogger(logger.Config{
		Level:   cfg.GetLogLevel(),
		Format:  cfg.Logging.Format,
		Service: cfg.ServiceName,
		Output:  ctx.App.ErrWriter,
	})

	c, err := server.NewComponents(ctx.Context, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("Failed to close storage", logger.ErrorField(err))
		}
	}()

	return fn(cfg, c, log)
}

func argsText(ctx *cli.Context, what string) (string, error) {
	text := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return text, nil
}

func memoryAddAction(ctx *cli.Context) error {
	text, err := argsText(ctx, "memory text")
	if err != nil {
		return err
	}

	return withComponents(ctx, func(_ *appconfig.AppConfig, c *server.Components, _ logger.Logger) error {
		userID := ctx.String("user")
		err := c.Memories.AddMemory(ctx.Context, userID, text)
		if err != nil && !errors.Is(err, memory_service.ErrPersistence) {
			return fmt.Errorf("failed to add memory: %w", err)
		}

		count, countErr := c.Memories.Count(ctx.Context, userID)
		if countErr != nil && !errors.Is(countErr, memory_service.ErrPersistence) {
			return countErr
		}
		if err != nil {
			return fmt.Errorf("memory held but not saved (%d in memory): %w", count, err)
		}
		_, _ = fmt.Fprintf(ctx.App.Writer, "Stored memory for %s (%d total)\n", userID, count)
		return nil
	})
}

func memorySearchAction(ctx *cli.Context) error {
	query, err := argsText(ctx, "query")
	if err != nil {
		return err
	}

	return withComponents(ctx, func(cfg *appconfig.AppConfig, c *server.Components, _ logger.Logger) error {
		k := cfg.Memory.TopK
		if ctx.IsSet("k") {
			k = ctx.Int("k")
		}

		memories, err := c.Memories.GetRelevantMemories(ctx.Context, ctx.String("user"), query, k)
		if err != nil {
			return fmt.Errorf("failed to search memories: %w", err)
		}
		printMemories(ctx, memories)
		return nil
	})
}

func memoryListAction(ctx *cli.Context) error {
	return withComponents(ctx, func(_ *appconfig.AppConfig, c *server.Components, _ logger.Logger) error {
		memories, err := c.Memories.Memories(ctx.Context, ctx.String("user"))
		if err != nil {
			return fmt.Errorf("failed to list memories: %w", err)
		}
		printMemories(ctx, memories)
		return nil
	})
}

func printMemories(ctx *cli.Context, memories []string) {
	if len(memories) == 0 {
		_, _ = fmt.Fprintln(ctx.App.Writer, "No memories found.")
		return
	}
	for i, m := range memories {
		_, _ = fmt.Fprintf(ctx.App.Writer, "%d. %s\n", i+1, m)
	}
}
