package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-multierror"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/internal/embedding"
	"github.com/lewisedginton/companion_chatbot/internal/memory_service"
	"github.com/lewisedginton/companion_chatbot/internal/prompt_builder"
	"github.com/lewisedginton/companion_chatbot/internal/sentiment"
	"github.com/lewisedginton/companion_chatbot/internal/storage_manager"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/lewisedginton/companion_chatbot/pkg/metrics"
)

// Storage namespaces.
const (
	MemoryNamespace = "memory"
	PromptNamespace = "prompts"
)

// Components are the domain services shared by the API server and the CLI.
type Components struct {
	Storage   *storage_manager.StorageManager
	Embedder  embedding.Embedder
	Memories  *memory_service.Manager
	Sentiment *sentiment.Analyzer
	Prompts   *prompt_builder.Builder

	EmbeddingBreaker *breaker.CircuitBreaker
	SentimentBreaker *breaker.CircuitBreaker
}

// NewComponents builds storage, memory, sentiment and prompt services from cfg.
// m may be nil when metrics are not collected.
func NewComponents(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger, m *metrics.Metrics) (*Components, error) {
	storage, err := NewStorageManager(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	c := &Components{
		Storage: storage,
		EmbeddingBreaker: breaker.New(breaker.Config{
			Name:        "embedding",
			MaxFailures: cfg.Embedding.BreakerFailures,
			Timeout:     cfg.Embedding.BreakerCooldown,
			Logger:      log,
		}),
		SentimentBreaker: breaker.New(breaker.Config{
			Name:        "sentiment",
			MaxFailures: cfg.Sentiment.BreakerFailures,
			Timeout:     cfg.Sentiment.BreakerCooldown,
			Logger:      log,
		}),
	}

	c.Embedder, err = embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Dimensions: cfg.Memory.Dimension,
		OpenAI: embedding.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.Embedding.Model,
			BaseURL:    cfg.OpenAI.BaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
		},
		CacheSize:      cfg.Embedding.CacheSize,
		Timeout:        cfg.Embedding.Timeout,
		CircuitBreaker: c.EmbeddingBreaker,
	})
	if err != nil {
		return nil, c.closeWith(fmt.Errorf("failed to create embedder: %w", err))
	}

	memCfg := memory_service.Config{
		FileProvider:   storage.GetProvider(MemoryNamespace),
		Embedder:       c.Embedder,
		Logger:         log,
		Dimension:      cfg.Memory.Dimension,
		MaxCachedUsers: cfg.Memory.MaxCachedUsers,
		LoadOnWrite:    cfg.Memory.LoadOnWrite,
	}
	if m != nil {
		memCfg.Recorder = m
	}
	c.Memories, err = memory_service.New(memCfg)
	if err != nil {
		return nil, c.closeWith(fmt.Errorf("failed to create memory manager: %w", err))
	}

	classifier, err := sentiment.NewClassifier(sentiment.ClassifierConfig{
		Backend: cfg.Sentiment.Backend,
		HuggingFace: sentiment.HuggingFaceConfig{
			Token:   cfg.Sentiment.HuggingFaceToken,
			Model:   cfg.Sentiment.HuggingFaceModel,
			BaseURL: cfg.Sentiment.HuggingFaceURL,
		},
		AnthropicAPIKey:  cfg.Anthropic.APIKey,
		AnthropicModel:   cfg.Sentiment.AnthropicModel,
		AnthropicBaseURL: cfg.Anthropic.APIBaseURL,
	})
	if err != nil {
		return nil, c.closeWith(fmt.Errorf("failed to create sentiment classifier: %w", err))
	}
	analyzerCfg := sentiment.AnalyzerConfig{
		Classifier: classifier,
		Breaker:    c.SentimentBreaker,
		Timeout:    cfg.Sentiment.Timeout,
		Logger:     log,
	}
	if m != nil {
		analyzerCfg.Recorder = m
	}
	c.Sentiment = sentiment.NewAnalyzer(analyzerCfg)

	c.Prompts, err = prompt_builder.LoadBuilder(ctx, storage.GetProvider(PromptNamespace))
	if err != nil {
		return nil, c.closeWith(fmt.Errorf("failed to load prompt template: %w", err))
	}

	log.Info("Companion components initialized",
		logger.StringField("storage_backend", string(storage.Backend())),
		logger.StringField("embedding_provider", cfg.Embedding.Provider),
		logger.IntField("memory_dimension", c.Memories.Dimension()),
		logger.StringField("sentiment_backend", cfg.Sentiment.Backend))

	return c, nil
}

// Close releases the storage backend.
func (c *Components) Close() error {
	if c.Storage == nil {
		return nil
	}
	return c.Storage.Close()
}

func (c *Components) closeWith(err error) error {
	if closeErr := c.Close(); closeErr != nil {
		return multierror.Append(err, closeErr)
	}
	return err
}

// NewStorageManager creates a storage manager for the configured backend.
func NewStorageManager(ctx context.Context, cfg appconfig.StorageConfig, log logger.Logger) (*storage_manager.StorageManager, error) {
	switch cfg.Backend {
	case appconfig.StorageLocal:
		log.Info("Using local file-based storage", logger.StringField("directory", cfg.LocalDir))

		// 0750 needed for directory traversal
		if err := os.MkdirAll(cfg.LocalDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}

		return storage_manager.New(storage_manager.Config{
			Backend:     storage_manager.BackendLocal,
			LocalConfig: &storage_manager.LocalConfig{BaseDir: cfg.LocalDir},
		})

	case appconfig.StorageS3:
		log.Info("Using S3-based storage",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		configOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3Profile != "" {
			configOptions = append(configOptions, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			configOptions = append(configOptions, awsconfig.WithRegion(cfg.S3Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendS3,
			S3Config: &storage_manager.S3Config{
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3Prefix,
				Client: s3.NewFromConfig(awsCfg),
			},
		})

	case appconfig.StorageGit:
		log.Info("Using git-versioned storage", logger.StringField("path", cfg.GitPath))

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendGit,
			GitConfig: &storage_manager.GitProviderOptions{
				Path:          cfg.GitPath,
				AuthorName:    cfg.GitAuthorName,
				AuthorEmail:   cfg.GitAuthorEmail,
				InitIfMissing: true,
			},
		})

	case appconfig.StorageSQLite:
		log.Info("Using SQLite storage", logger.StringField("path", cfg.SQLitePath))

		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}

		return storage_manager.New(storage_manager.Config{
			Backend:      storage_manager.BackendSQLite,
			SQLiteConfig: &storage_manager.SQLiteConfig{Path: cfg.SQLitePath},
		})

	default:
		return nil, errors.New("unsupported storage backend: " + cfg.Backend)
	}
}
