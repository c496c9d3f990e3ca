package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/companion_chatbot/internal/vectorindex"
)

// MemoryConfig tunes the per-user semantic memory.
type MemoryConfig struct {
	TopK           int `env:"MEMORY_TOP_K" yaml:"top_k" default:"3"`
	Dimension      int `env:"MEMORY_DIMENSION" yaml:"dimension" default:"384"`
	MaxCachedUsers int `env:"MEMORY_MAX_CACHED_USERS" yaml:"max_cached_users" default:"0"`
	// LoadOnWrite reads an existing snapshot before a user's first add.
	LoadOnWrite bool `env:"MEMORY_LOAD_ON_WRITE" yaml:"load_on_write" default:"false"`
	// RememberByDefault applies to chat messages that do not say whether to remember.
	RememberByDefault bool `env:"MEMORY_REMEMBER_BY_DEFAULT" yaml:"remember_by_default" default:"true"`
}

// Validate checks the memory limits.
func (c MemoryConfig) Validate() error {
	var result error
	if c.TopK < 1 {
		result = multierror.Append(result, fmt.Errorf("top_k must be at least 1, got %d", c.TopK))
	}
	if c.Dimension < 1 || c.Dimension > vectorindex.MaxDimension {
		result = multierror.Append(result, fmt.Errorf("dimension must be between 1 and %d, got %d", vectorindex.MaxDimension, c.Dimension))
	}
	if c.MaxCachedUsers < 0 {
		result = multierror.Append(result, fmt.Errorf("max_cached_users cannot be negative"))
	}
	return result
}

// Embedding providers.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingHash   = "hash"
)

// EmbeddingConfig selects and guards the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `env:"EMBEDDING_PROVIDER" yaml:"provider" default:"hash"`
	Model     string        `env:"EMBEDDING_MODEL" yaml:"model" default:"text-embedding-3-small"`
	CacheSize int64         `env:"EMBEDDING_CACHE_SIZE" yaml:"cache_size" default:"10000"`
	Timeout   time.Duration `env:"EMBEDDING_TIMEOUT" yaml:"timeout" default:"10s"`
	// BreakerFailures consecutive failures open the circuit.
	BreakerFailures uint32        `env:"EMBEDDING_BREAKER_FAILURES" yaml:"breaker_failures" default:"5"`
	BreakerCooldown time.Duration `env:"EMBEDDING_BREAKER_COOLDOWN" yaml:"breaker_cooldown" default:"30s"`
}

// Validate checks the provider name and timeouts.
func (c EmbeddingConfig) Validate() error {
	var result error
	if c.Provider != EmbeddingOpenAI && c.Provider != EmbeddingHash {
		result = multierror.Append(result, fmt.Errorf("provider must be openai or hash, got %q", c.Provider))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must be greater than 0"))
	}
	if c.CacheSize < 0 {
		result = multierror.Append(result, fmt.Errorf("cache_size cannot be negative"))
	}
	return result
}

// Sentiment backends.
const (
	SentimentHuggingFace = "huggingface"
	SentimentAnthropic   = "anthropic"
	SentimentNone        = "none"
)

// SentimentConfig selects and guards the sentiment classifier.
type SentimentConfig struct {
	Backend          string        `env:"SENTIMENT_BACKEND" yaml:"backend" default:"huggingface"`
	HuggingFaceToken string        `env:"HUGGINGFACE_TOKEN" yaml:"huggingface_token"`
	HuggingFaceModel string        `env:"HUGGINGFACE_MODEL" yaml:"huggingface_model" default:"cardiffnlp/twitter-roberta-base-sentiment"`
	HuggingFaceURL   string        `env:"HUGGINGFACE_URL" yaml:"huggingface_url" default:"https://api-inference.huggingface.co/models"`
	AnthropicModel   string        `env:"SENTIMENT_CLAUDE_MODEL" yaml:"anthropic_model" default:"claude-haiku-4-5"`
	Timeout          time.Duration `env:"SENTIMENT_TIMEOUT" yaml:"timeout" default:"10s"`
	BreakerFailures  uint32        `env:"SENTIMENT_BREAKER_FAILURES" yaml:"breaker_failures" default:"5"`
	BreakerCooldown  time.Duration `env:"SENTIMENT_BREAKER_COOLDOWN" yaml:"breaker_cooldown" default:"30s"`
}

// Validate checks the backend name and timeout.
func (c SentimentConfig) Validate() error {
	var result error
	switch c.Backend {
	case SentimentHuggingFace, SentimentAnthropic, SentimentNone:
	default:
		result = multierror.Append(result, fmt.Errorf("backend must be huggingface, anthropic or none, got %q", c.Backend))
	}
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must be greater than 0"))
	}
	return result
}
