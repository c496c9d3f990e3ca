package sentiment

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// Backend names accepted by NewClassifier.
const (
	BackendHuggingFace = "huggingface"
	BackendAnthropic   = "anthropic"
	BackendNone        = "none"
)

// ClassifierConfig selects a classifier backend.
type ClassifierConfig struct {
	Backend     string
	HuggingFace HuggingFaceConfig
	// Anthropic settings are used by the anthropic backend.
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
}

// NewClassifier returns the configured classifier, or nil for the none backend.
func NewClassifier(cfg ClassifierConfig) (Classifier, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendHuggingFace:
		return NewHuggingFaceClassifier(cfg.HuggingFace), nil
	case BackendAnthropic:
		var opts []option.RequestOption
		if cfg.AnthropicBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.AnthropicBaseURL))
		}
		return NewClaudeClassifier(cfg.AnthropicAPIKey, cfg.AnthropicModel, opts...)
	case BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported sentiment backend: %q", cfg.Backend)
	}
}
