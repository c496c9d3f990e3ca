// Package persistence stores per-user chat histories.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/companion_chatbot/pkg/prefixed_uuid"
)

const (
	// DefaultChatTitle is used when a chat is created without a title.
	DefaultChatTitle = "New Chat"

	chatIDPrefix = "chat"
)

// Message roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

var (
	// ErrChatNotFound is returned when the chat does not exist for the user.
	ErrChatNotFound = errors.New("chat not found")
	// ErrInvalidRole is returned for roles other than user and bot.
	ErrInvalidRole = errors.New("message role must be user or bot")
)

// Message is one entry of a chat transcript.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a titled conversation owned by one user.
type Chat struct {
	ID        string    `json:"chat_id"`
	UserID    string    `json:"-"`
	Title     string    `json:"chat_title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatStore persists chats and their messages.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (Chat, error)
	// ListChats returns the user's chats oldest first, messages included.
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	// AppendMessages adds messages to the end of a chat atomically.
	AppendMessages(ctx context.Context, userID, chatID string, messages ...Message) error
	DeleteChat(ctx context.Context, userID, chatID string) error
	Close() error
}

func newChatID() prefixed_uuid.PrefixedUUID {
	return prefixed_uuid.New(chatIDPrefix)
}

// parseChatID accepts only IDs produced by newChatID; anything else cannot exist.
func parseChatID(chatID string) (prefixed_uuid.PrefixedUUID, error) {
	id, err := prefixed_uuid.Parse(chatIDPrefix, chatID)
	if err != nil {
		return prefixed_uuid.PrefixedUUID{}, fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	return id, nil
}

func validateMessages(messages []Message) error {
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleBot {
			return fmt.Errorf("%q: %w", m.Role, ErrInvalidRole)
		}
	}
	return nil
}

func titleOrDefault(title string) string {
	if title == "" {
		return DefaultChatTitle
	}
	return title
}
