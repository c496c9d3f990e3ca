package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxTokens bounds reply length when no limit is configured.
const DefaultMaxTokens = 1024

// ClaudeGenerator generates replies with the Anthropic Messages API.
type ClaudeGenerator struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewClaudeGenerator creates a new Claude generator.
func NewClaudeGenerator(apiKey, modelName string, maxTokens int64, opts ...option.RequestOption) (*ClaudeGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if modelName == "" {
		modelName = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	client := anthropic.NewClient(
		append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...,
	)
	return &ClaudeGenerator{client: client, modelName: modelName, maxTokens: maxTokens}, nil
}

func (c *ClaudeGenerator) Name() string {
	return c.modelName
}

func (c *ClaudeGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemPrompt != "" {
		req.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(reply.String()) == "" {
		return "", ErrEmptyReply
	}
	return reply.String(), nil
}
