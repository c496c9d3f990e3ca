// Package generation produces companion replies from a system prompt and the
// user's message using a hosted LLM.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// Provider names accepted by New.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrEmptyReply is returned when a model answers without text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Generator produces one reply per call.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
	Name() string
}

// Config selects and configures the generation backend.
type Config struct {
	Provider  string
	MaxTokens int64

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiProject string
	GeminiRegion  string

	MaxRetries int
}

// New creates the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderClaude, "anthropic":
		opts := []anthropicopt.RequestOption{anthropicopt.WithMaxRetries(cfg.MaxRetries)}
		if cfg.AnthropicBaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(cfg.AnthropicBaseURL))
		}
		return NewClaudeGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens, opts...)

	case ProviderOpenAI:
		opts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(cfg.MaxRetries)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.MaxTokens, opts...)

	case ProviderGemini:
		clientConfig := &genai.ClientConfig{APIKey: cfg.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
		// Vertex AI is used when a project and region are configured
		if cfg.GeminiProject != "" && cfg.GeminiRegion != "" {
			clientConfig.Backend = genai.BackendVertexAI
			clientConfig.Project = cfg.GeminiProject
			clientConfig.Location = cfg.GeminiRegion
			clientConfig.APIKey = ""
		}
		return NewGeminiGenerator(ctx, cfg.GeminiModel, cfg.MaxTokens, clientConfig)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call on g. A non-positive timeout returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: timeout}
}

func (t *timeoutGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, systemPrompt, userMessage)
}

func (t *timeoutGenerator) Name() string {
	return t.next.Name()
}
