package embedding

import (
	"fmt"
	"strings"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config selects and decorates an embedding backend.
type Config struct {
	Provider   string
	Dimensions int
	OpenAI     OpenAIConfig
	// CacheSize bounds the text to vector cache; 0 disables caching.
	CacheSize int64
	Timeout   time.Duration
	Breaker   breaker.Config
	// CircuitBreaker, when set, is used instead of building one from Breaker.
	CircuitBreaker *breaker.CircuitBreaker
}

// New builds the configured embedder, wrapped as cache -> guard -> provider.
func New(cfg Config) (Embedder, error) {
	if cfg.Dimensions < 1 {
		cfg.Dimensions = DefaultDimensions
	}

	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		openaiCfg := cfg.OpenAI
		openaiCfg.Dimensions = cfg.Dimensions
		e, err := NewOpenAIEmbedder(openaiCfg)
		if err != nil {
			return nil, err
		}
		base = e
	case ProviderHash, "":
		base = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		if cfg.Breaker.Name == "" {
			cfg.Breaker.Name = "embedding"
		}
		cb = breaker.New(cfg.Breaker)
	}
	var embedder Embedder = NewGuardedEmbedder(base, cb, cfg.Timeout)

	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(embedder, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		embedder = cached
	}
	return embedder, nil
}
