package generation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator generates replies with the Gemini API or Vertex AI.
type GeminiGenerator struct {
	client    *genai.Client
	modelName string
	maxTokens int32
}

// NewGeminiGenerator creates a new Gemini generator.
func NewGeminiGenerator(ctx context.Context, modelName string, maxTokens int64, cfg *genai.ClientConfig) (*GeminiGenerator, error) {
	if cfg == nil {
		cfg = &genai.ClientConfig{}
	}
	if cfg.APIKey == "" && cfg.Backend != genai.BackendVertexAI {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{
		client:    client,
		modelName: modelName,
		maxTokens: int32(min(maxTokens, 1<<20)), //nolint:gosec // G115: clamped above
	}, nil
}

func (g *GeminiGenerator) Name() string {
	return g.modelName
}

func (g *GeminiGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(userMessage), config)
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}

	reply := resp.Text()
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
