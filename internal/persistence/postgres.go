package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewisedginton/companion_chatbot/internal/persistence/sqlc"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/lewisedginton/companion_chatbot/pkg/prefixed_uuid"
)

// PoolConfig configures the PostgreSQL connection pool.
type PoolConfig struct {
	URL             string
	MaxConnections  int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresChatStore stores chats in PostgreSQL.
type PostgresChatStore struct {
	db      *pgxpool.Pool
	queries *sqlc.Queries
	logger  logger.Logger
	now     func() time.Time
}

// NewPostgresChatStore creates a store over an open pool. The schema must be migrated.
func NewPostgresChatStore(db *pgxpool.Pool, logger logger.Logger) *PostgresChatStore {
	return &PostgresChatStore{
		db:      db,
		queries: sqlc.New(db),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *PostgresChatStore) CreateChat(ctx context.Context, userID, title string) (Chat, error) {
	id := newChatID()
	row, err := s.queries.CreateChat(ctx, sqlc.CreateChatParams{
		ID:        pgUUID(id),
		UserID:    userID,
		Title:     titleOrDefault(title),
		CreatedAt: pgTime(s.now()),
	})
	if err != nil {
		s.logger.Error("failed to create chat", logger.ErrorField(err), logger.UserIDField(userID))
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}

	chat := convertChat(row)
	chat.Messages = []Message{}
	return chat, nil
}

func (s *PostgresChatStore) GetChat(ctx context.Context, userID, chatID string) (Chat, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return Chat{}, err
	}

	row, err := s.queries.GetChat(ctx, sqlc.GetChatParams{ID: pgUUID(id), UserID: userID})
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}

	rows, err := s.queries.ListMessagesByChat(ctx, row.ID)
	if err != nil {
		return Chat{}, fmt.Errorf("list messages: %w", err)
	}

	chat := convertChat(row)
	chat.Messages = make([]Message, 0, len(rows))
	for _, m := range rows {
		chat.Messages = append(chat.Messages, convertMessage(m))
	}
	return chat, nil
}

func (s *PostgresChatStore) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	chatRows, err := s.queries.ListChatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	messageRows, err := s.queries.ListMessagesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	byChat := make(map[[16]byte][]Message, len(chatRows))
	for _, m := range messageRows {
		byChat[m.ChatID.Bytes] = append(byChat[m.ChatID.Bytes], convertMessage(m))
	}

	chats := make([]Chat, 0, len(chatRows))
	for _, row := range chatRows {
		chat := convertChat(row)
		chat.Messages = byChat[row.ID.Bytes]
		if chat.Messages == nil {
			chat.Messages = []Message{}
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *PostgresChatStore) AppendMessages(ctx context.Context, userID, chatID string, messages ...Message) error {
	if err := validateMessages(messages); err != nil {
		return err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	queries := s.queries.WithTx(tx)

	if _, err := queries.GetChat(ctx, sqlc.GetChatParams{ID: pgUUID(id), UserID: userID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
		}
		return fmt.Errorf("get chat: %w", err)
	}

	for _, m := range messages {
		err := queries.InsertMessage(ctx, sqlc.InsertMessageParams{
			ChatID:    pgUUID(id),
			Role:      sqlc.MessageRole(m.Role),
			Text:      m.Text,
			CreatedAt: pgTime(m.Timestamp),
		})
		if err != nil {
			s.logger.Error("failed to insert message", logger.ErrorField(err), logger.StringField("chat_id", chatID))
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	return nil
}

func (s *PostgresChatStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	deleted, err := s.queries.DeleteChat(ctx, sqlc.DeleteChatParams{ID: pgUUID(id), UserID: userID})
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresChatStore) Close() error {
	s.db.Close()
	return nil
}

func pgUUID(id prefixed_uuid.PrefixedUUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id.UUID, Valid: true}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		t = time.Now()
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func convertChat(row sqlc.Chat) Chat {
	return Chat{
		ID:        prefixed_uuid.FromUUID(chatIDPrefix, row.ID.Bytes).String(),
		UserID:    row.UserID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt.Time,
	}
}

func convertMessage(row sqlc.Message) Message {
	return Message{
		Role:      string(row.Role),
		Text:      row.Text,
		Timestamp: row.CreatedAt.Time,
	}
}
