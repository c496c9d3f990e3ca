package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// LLM provider constants
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// LLMConfig holds reply generation settings.
type LLMConfig struct {
	// Provider specifies which LLM provider to use: "claude", "gemini", or "openai"
	Provider   string        `env:"LLM_PROVIDER" yaml:"provider" default:"claude"`
	MaxTokens  int64         `env:"LLM_MAX_TOKENS" yaml:"max_tokens" default:"1024"`
	MaxRetries int           `env:"LLM_MAX_RETRIES" yaml:"max_retries" default:"3"`
	Timeout    time.Duration `env:"LLM_TIMEOUT" yaml:"timeout" default:"45s"`
}

// Validate checks the provider and limits.
func (c LLMConfig) Validate() error {
	var result error
	switch strings.ToLower(c.Provider) {
	case ProviderClaude, "anthropic", ProviderGemini, ProviderOpenAI:
	default:
		result = multierror.Append(result, fmt.Errorf("provider must be claude, gemini or openai, got %q", c.Provider))
	}
	if c.MaxTokens < 1 {
		result = multierror.Append(result, fmt.Errorf("max_tokens must be at least 1"))
	}
	if c.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("max_retries cannot be negative"))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must be greater than 0"))
	}
	return result
}

// AnthropicConfig holds Anthropic-specific configuration
type AnthropicConfig struct {
	APIKey     string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model      string `env:"CLAUDE_MODEL" yaml:"model" default:"claude-sonnet-4-5-20250929"`
	APIBaseURL string `env:"ANTHROPIC_API_URL" yaml:"api_base_url"`
}

// OpenAIConfig holds OpenAI configuration for generation and embeddings.
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY" yaml:"api_key"`
	Model   string `env:"OPENAI_MODEL" yaml:"model" default:"gpt-4o-mini"`
	BaseURL string `env:"OPENAI_BASE_URL" yaml:"base_url"`
}

// GeminiConfig holds Gemini configuration. Project and Region select Vertex AI.
type GeminiConfig struct {
	APIKey  string `env:"GEMINI_API_KEY" yaml:"api_key"`
	Model   string `env:"GEMINI_MODEL" yaml:"model" default:"gemini-2.5-flash"`
	Project string `env:"GEMINI_PROJECT" yaml:"project"`
	Region  string `env:"GEMINI_REGION" yaml:"region"`
}
