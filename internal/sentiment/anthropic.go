package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeInstruction = `Classify the sentiment of the user's message.
Reply with only a JSON array of objects with "label" and "score" fields, using the labels
NEGATIVE, NEUTRAL and POSITIVE. Scores are probabilities that sum to 1, for example:
[{"label":"NEGATIVE","score":0.1},{"label":"NEUTRAL","score":0.2},{"label":"POSITIVE","score":0.7}]`

// DefaultClaudeModel is a small model; classification needs no reasoning depth.
const DefaultClaudeModel = "claude-haiku-4-5"

// ClaudeClassifier asks a Claude model for a label distribution.
type ClaudeClassifier struct {
	client    anthropic.Client
	modelName string
}

// NewClaudeClassifier creates a classifier backed by the Messages API.
func NewClaudeClassifier(apiKey, modelName string, opts ...option.RequestOption) (*ClaudeClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if modelName == "" {
		modelName = DefaultClaudeModel
	}

	client := anthropic.NewClient(
		append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...,
	)
	return &ClaudeClassifier{client: client, modelName: modelName}, nil
}

func (c *ClaudeClassifier) Classify(ctx context.Context, text string) ([]LabelScore, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: claudeInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseScores(reply.String())
}

// parseScores extracts the first JSON array from a model reply.
func parseScores(reply string) ([]LabelScore, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in classifier reply")
	}

	var scores []LabelScore
	if err := json.Unmarshal([]byte(reply[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("failed to parse classifier reply: %w", err)
	}
	for i := range scores {
		scores[i].Label = strings.ToUpper(strings.TrimSpace(scores[i].Label))
	}
	return scores, nil
}
