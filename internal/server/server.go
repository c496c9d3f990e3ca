// Package server wires the companion services into the HTTP and websocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/lewisedginton/companion_chatbot/internal/companion"
	appconfig "github.com/lewisedginton/companion_chatbot/internal/config"
	"github.com/lewisedginton/companion_chatbot/internal/generation"
	"github.com/lewisedginton/companion_chatbot/internal/persistence"
	"github.com/lewisedginton/companion_chatbot/internal/storage_manager"
	"github.com/lewisedginton/companion_chatbot/pkg/health"
	"github.com/lewisedginton/companion_chatbot/pkg/health/checkers"
	"github.com/lewisedginton/companion_chatbot/pkg/httpmiddleware"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/lewisedginton/companion_chatbot/pkg/metrics"
)

// Server encapsulates the API server components and lifecycle management
type Server struct {
	cfg        *appconfig.AppConfig
	log        logger.Logger
	components *Components
	chats      persistence.ChatStore
	metrics    *metrics.Metrics
	api        *api
	httpServer *http.Server
	closeOnce  sync.Once
}

// New creates a new Server instance with all components initialized
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(true, log),
	}

	var err error
	s.components, err = NewComponents(ctx, cfg, log, s.metrics)
	if err != nil {
		return nil, err
	}

	generator, err := generation.New(ctx, generation.Config{
		Provider:         cfg.LLM.Provider,
		MaxTokens:        cfg.LLM.MaxTokens,
		AnthropicAPIKey:  cfg.Anthropic.APIKey,
		AnthropicModel:   cfg.Anthropic.Model,
		AnthropicBaseURL: cfg.Anthropic.APIBaseURL,
		OpenAIAPIKey:     cfg.OpenAI.APIKey,
		OpenAIModel:      cfg.OpenAI.Model,
		OpenAIBaseURL:    cfg.OpenAI.BaseURL,
		GeminiAPIKey:     cfg.Gemini.APIKey,
		GeminiModel:      cfg.Gemini.Model,
		GeminiProject:    cfg.Gemini.Project,
		GeminiRegion:     cfg.Gemini.Region,
		MaxRetries:       cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, s.closeWith(fmt.Errorf("failed to create generator: %w", err))
	}
	log.Info("Reply generator initialized", logger.StringField("provider", generator.Name()))

	var pool *pgxpool.Pool
	s.chats, pool, err = NewChatStore(ctx, cfg.Database, log)
	if err != nil {
		return nil, s.closeWith(err)
	}

	service := companion.New(companion.Config{
		Memories:  s.components.Memories,
		Sentiment: s.components.Sentiment,
		Generator: generation.WithTimeout(generator, cfg.LLM.Timeout),
		Chats:     s.chats,
		Prompts:   s.components.Prompts,
		MemoryK:   cfg.Memory.TopK,
		Recorder:  s.metrics,
		Logger:    log,
	})

	var limiter *httpmiddleware.RateLimiter
	if cfg.Security.RateLimitEnabled {
		limiter = httpmiddleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}

	s.api = &api{
		log:               log,
		memories:          s.components.Memories,
		chats:             s.chats,
		companion:         service,
		health:            s.newHealthChecker(pool),
		metrics:           s.metrics,
		limiter:           limiter,
		upgrader:          newUpgrader(cfg.Security.CORSAllowedOrigins),
		closing:           make(chan struct{}),
		memoryK:           cfg.Memory.TopK,
		rememberByDefault: cfg.Memory.RememberByDefault,
		requestTimeout:    cfg.HTTP.RequestTimeout,
		maxBodySize:       cfg.Security.MaxRequestSize,
		allowedOrigins:    cfg.Security.CORSAllowedOrigins,
		pathPrefix:        cfg.HTTP.PathPrefix,
		production:        cfg.IsProduction(),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.api.routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return s, nil
}

// NewChatStore opens PostgreSQL when a database URL is configured and falls
// back to an in-memory store otherwise. The pool is nil for the memory store.
func NewChatStore(ctx context.Context, cfg appconfig.DatabaseConfig, log logger.Logger) (persistence.ChatStore, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, chat history is kept in memory")
		return persistence.NewMemoryChatStore(), nil, nil
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		URL:             cfg.URL,
		MaxConnections:  cfg.MaxConnections,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		migrator := persistence.NewMigrationManager(pool, log)
		err := migrator.RunMigrations()
		if closeErr := migrator.Close(); closeErr != nil {
			log.Warn("Failed to close migration connection", logger.ErrorField(closeErr))
		}
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info("Using PostgreSQL chat store")
	return persistence.NewPostgresChatStore(pool, log), pool, nil
}

// newHealthChecker registers liveness and readiness checks for the server's dependencies.
func (s *Server) newHealthChecker(pool *pgxpool.Pool) *health.HealthChecker {
	h := health.New(
		health.WithTimeout(s.cfg.Monitoring.HealthCheckTimeout),
		health.WithFailureThreshold(s.cfg.Monitoring.FailureThreshold),
		health.WithLogger(s.log),
	)

	// the git backend commits every write, so it is not probed
	if s.components.Storage.Backend() != storage_manager.BackendGit {
		h.AddReadinessCheck(checkers.NewStorageChecker(
			s.components.Storage.GetProvider(MemoryNamespace), checkers.DefaultProbePath))
	}
	if pool != nil {
		h.AddReadinessCheck(checkers.NewPingChecker(pool, "database"))
	}
	// an open breaker degrades replies but does not stop them
	h.AddReadinessCheck(checkers.NewBreakerChecker("embedding", s.components.EmbeddingBreaker), health.NonCritical())
	h.AddReadinessCheck(checkers.NewBreakerChecker("sentiment", s.components.SentimentBreaker), health.NonCritical())

	return h
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("HTTP server listening", logger.StringField("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("Shutting down HTTP server")
		close(s.api.closing)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if s.cfg.Monitoring.MetricsEnabled {
		g.Go(func() error {
			return s.metrics.Listen(ctx, s.cfg.Monitoring.MetricsPort)
		})
	}

	if s.api.limiter != nil {
		g.Go(func() error {
			s.api.limiter.Run(ctx)
			return nil
		})
	}

	err := g.Wait()
	if closeErr := s.Close(); closeErr != nil {
		err = multierror.Append(err, closeErr)
	}
	s.log.Info("Server stopped")
	return err
}

// Close releases the chat store and storage backend.
func (s *Server) Close() error {
	var result error
	s.closeOnce.Do(func() {
		if s.chats != nil {
			if err := s.chats.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close chat store: %w", err))
			}
		}
		if s.components != nil {
			if err := s.components.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close storage: %w", err))
			}
		}
	})
	return result
}

func (s *Server) closeWith(err error) error {
	if closeErr := s.Close(); closeErr != nil {
		return multierror.Append(err, closeErr)
	}
	return err
}

// ShutdownGrace is added to the configured shutdown timeout before a forced exit.
const ShutdownGrace = 5 * time.Second
