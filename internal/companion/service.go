// Package companion runs the reply pipeline: recall memories, read the user's
// mood, build the system prompt, generate, then record the exchange.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/generation"
	"github.com/lewisedginton/companion_chatbot/internal/memory_service"
	"github.com/lewisedginton/companion_chatbot/internal/persistence"
	"github.com/lewisedginton/companion_chatbot/internal/prompt_builder"
	"github.com/lewisedginton/companion_chatbot/internal/sentiment"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

var (
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrGenerationFailed wraps generator errors; it is the only dependency failure
	// that fails a reply.
	ErrGenerationFailed = errors.New("reply generation failed")
)

// MemoryStore is the part of the memory manager the pipeline uses.
type MemoryStore interface {
	AddMemory(ctx context.Context, userID, text string) error
	GetRelevantMemories(ctx context.Context, userID, query string, k int) ([]string, error)
}

// SentimentAnalyzer never fails; it degrades to a neutral summary.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) sentiment.Summary
}

// Recorder receives generation outcomes for metrics.
type Recorder interface {
	ReplyGenerated(provider string, duration time.Duration, err error)
}

// Config holds the pipeline's collaborators.
type Config struct {
	Memories  MemoryStore
	Sentiment SentimentAnalyzer
	Generator generation.Generator
	Chats     persistence.ChatStore
	// Prompts defaults to the built-in template.
	Prompts *prompt_builder.Builder
	// MemoryK is how many memories are recalled per reply.
	MemoryK  int
	Recorder Recorder
	Logger   logger.Logger
}

// Service generates companion replies.
type Service struct {
	memories  MemoryStore
	sentiment SentimentAnalyzer
	generator generation.Generator
	chats     persistence.ChatStore
	prompts   *prompt_builder.Builder
	k         int
	recorder  Recorder
	log       logger.Logger
	now       func() time.Time
}

// New creates a companion service.
func New(cfg Config) *Service {
	if cfg.Memories == nil || cfg.Sentiment == nil || cfg.Generator == nil || cfg.Chats == nil {
		panic("companion dependencies cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = prompt_builder.Default()
	}
	k := cfg.MemoryK
	if k < 1 {
		k = memory_service.DefaultK
	}

	return &Service{
		memories:  cfg.Memories,
		sentiment: cfg.Sentiment,
		generator: cfg.Generator,
		chats:     cfg.Chats,
		prompts:   prompts,
		k:         k,
		recorder:  cfg.Recorder,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// ReplyRequest is one user turn.
type ReplyRequest struct {
	UserID   string
	ChatID   string
	Message  string
	Stage    string
	Traits   []string
	Remember bool
}

// Reply is the outcome of one turn.
type Reply struct {
	// Messages holds the stored user message followed by the bot reply.
	Messages  []persistence.Message `json:"messages"`
	Memories  []string              `json:"memories"`
	Sentiment sentiment.Summary     `json:"sentiment"`
	Stage     string                `json:"relationship_stage"`
	// MemoryError is set when the message could not be remembered durably.
	MemoryError string `json:"memory_error,omitempty"`
}

// Reply runs the pipeline for req. Only a missing chat, an empty message or a
// generation failure return an error.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if req.Stage == "" {
		req.Stage = prompt_builder.DefaultStage().Name
	}
	log := logger.GetLoggerFromContext(ctx, s.log).WithFields(
		logger.UserIDField(req.UserID),
		logger.StringField("chat_id", req.ChatID))

	if _, err := s.chats.GetChat(ctx, req.UserID, req.ChatID); err != nil {
		return nil, err
	}
	userMessage := persistence.Message{Role: persistence.RoleUser, Text: req.Message, Timestamp: s.now().UTC()}

	memories, err := s.memories.GetRelevantMemories(ctx, req.UserID, req.Message, s.k)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	mood := s.sentiment.Analyze(ctx, req.Message)
	systemPrompt := s.prompts.Build(req.Stage, memories, mood, req.Traits)

	start := time.Now()
	text, err := s.generator.Generate(ctx, systemPrompt, req.Message)
	if s.recorder != nil {
		s.recorder.ReplyGenerated(s.generator.Name(), time.Since(start), err)
	}
	if err != nil {
		log.Error("Reply generation failed", logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	botMessage := persistence.Message{Role: persistence.RoleBot, Text: text, Timestamp: s.now().UTC()}

	if err := s.chats.AppendMessages(ctx, req.UserID, req.ChatID, userMessage, botMessage); err != nil {
		return nil, fmt.Errorf("store messages: %w", err)
	}

	reply := &Reply{
		Messages:  []persistence.Message{userMessage, botMessage},
		Memories:  memories,
		Sentiment: mood,
		Stage:     req.Stage,
	}

	if req.Remember {
		if err := s.memories.AddMemory(ctx, req.UserID, req.Message); err != nil {
			log.Warn("Message kept in memory but not persisted", logger.ErrorField(err))
			reply.MemoryError = err.Error()
		}
	}

	log.Info("Generated reply",
		logger.StringField("stage", req.Stage),
		logger.StringField("mood", mood.DominantLabel),
		logger.IntField("memories", len(memories)),
		logger.BoolField("remembered", req.Remember))
	return reply, nil
}
