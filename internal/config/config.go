// Package config defines the companion service configuration. Values come from
// an optional YAML file overlaid by environment variables (see pkg/config).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/companion_chatbot/pkg/config"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"companion-chatbot"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Memory     MemoryConfig     `yaml:"memory"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	LLM        LLMConfig        `yaml:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Database   DatabaseConfig   `yaml:"database"`
	Security   SecurityConfig   `yaml:"security"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Port              int           `env:"PORT" yaml:"port" default:"8080"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"60s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" yaml:"read_header_timeout" default:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" yaml:"idle_timeout" default:"120s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"30s"`

	// PathPrefix is stripped from request paths when the API sits behind a
	// gateway under a sub-path, e.g. /companion.
	PathPrefix string `env:"HTTP_PATH_PREFIX" yaml:"path_prefix"`
}

// Validate checks the listener settings.
func (c HTTPConfig) Validate() error {
	var result error
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request_timeout must be greater than 0"))
	}
	if c.ShutdownTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("shutdown_timeout must be greater than 0"))
	}
	if c.PathPrefix != "" && (!strings.HasPrefix(c.PathPrefix, "/") || strings.HasSuffix(c.PathPrefix, "/")) {
		result = multierror.Append(result, fmt.Errorf("path_prefix must start and must not end with /, got %q", c.PathPrefix))
	}
	return result
}

// Load reads path (optional) and the environment into an AppConfig and validates it.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type validator interface {
	Validate() error
}

// Validate validates every section and aggregates the failures.
func (c *AppConfig) Validate() error {
	var result error
	sections := []struct {
		name string
		v    validator
	}{
		{"http", c.HTTP},
		{"logging", c.Logging},
		{"storage", c.Storage},
		{"memory", c.Memory},
		{"embedding", c.Embedding},
		{"sentiment", c.Sentiment},
		{"llm", c.LLM},
		{"database", c.Database},
		{"security", c.Security},
		{"monitoring", c.Monitoring},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if err := c.validateCredentials(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Monitoring.MetricsEnabled && c.Monitoring.MetricsPort == c.HTTP.Port {
		result = multierror.Append(result, fmt.Errorf("metrics_port must differ from port %d", c.HTTP.Port))
	}
	return result
}

// validateCredentials checks that the selected providers have what they need.
func (c *AppConfig) validateCredentials() error {
	var result error

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderClaude, "anthropic":
		if c.Anthropic.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required for the claude provider"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" && (c.Gemini.Project == "" || c.Gemini.Region == "") {
			result = multierror.Append(result, fmt.Errorf("GEMINI_API_KEY or GEMINI_PROJECT and GEMINI_REGION are required for the gemini provider"))
		}
	}

	if strings.EqualFold(c.Embedding.Provider, EmbeddingOpenAI) && c.OpenAI.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings"))
	}
	if strings.EqualFold(c.Sentiment.Backend, SentimentAnthropic) && c.Anthropic.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic sentiment"))
	}
	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.Level)
}

// NewLogger builds the service logger from the logging section.
func (c *AppConfig) NewLogger() logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   c.GetLogLevel(),
		Format:  c.Logging.Format,
		Service: c.ServiceName,
	})
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("port", c.HTTP.Port),
		logger.StringField("log_level", c.Logging.Level),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("embedding_provider", c.Embedding.Provider),
		logger.IntField("memory_dimension", c.Memory.Dimension),
		logger.IntField("memory_max_cached_users", c.Memory.MaxCachedUsers),
		logger.StringField("sentiment_backend", c.Sentiment.Backend),
		logger.StringField("llm_provider", c.LLM.Provider),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
		logger.BoolField("database_configured", c.Database.URL != ""),
		logger.BoolField("rate_limit_enabled", c.Security.RateLimitEnabled),
		logger.FloatField("rate_limit_rps", c.Security.RateLimitRPS),
	)
}
