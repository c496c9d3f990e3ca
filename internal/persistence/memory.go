package persistence

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryChatStore keeps chats in process memory. It backs development runs and tests.
type MemoryChatStore struct {
	mu    sync.RWMutex
	chats map[string][]*Chat // user ID -> chats, oldest first
	now   func() time.Time
}

// NewMemoryChatStore creates an empty store.
func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{
		chats: make(map[string][]*Chat),
		now:   time.Now,
	}
}

func (s *MemoryChatStore) CreateChat(_ context.Context, userID, title string) (Chat, error) {
	chat := &Chat{
		ID:        newChatID().String(),
		UserID:    userID,
		Title:     titleOrDefault(title),
		Messages:  []Message{},
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[userID] = append(s.chats[userID], chat)
	return copyChat(chat), nil
}

func (s *MemoryChatStore) GetChat(_ context.Context, userID, chatID string) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, _ := s.find(userID, chatID)
	if chat == nil {
		return Chat{}, fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	return copyChat(chat), nil
}

func (s *MemoryChatStore) ListChats(_ context.Context, userID string) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]Chat, 0, len(s.chats[userID]))
	for _, c := range s.chats[userID] {
		chats = append(chats, copyChat(c))
	}
	return chats, nil
}

func (s *MemoryChatStore) AppendMessages(_ context.Context, userID, chatID string, messages ...Message) error {
	if err := validateMessages(messages); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, _ := s.find(userID, chatID)
	if chat == nil {
		return fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	chat.Messages = append(chat.Messages, messages...)
	return nil
}

func (s *MemoryChatStore) DeleteChat(_ context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx := s.find(userID, chatID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", chatID, ErrChatNotFound)
	}
	s.chats[userID] = slices.Delete(s.chats[userID], idx, idx+1)
	return nil
}

func (s *MemoryChatStore) Close() error {
	return nil
}

func (s *MemoryChatStore) find(userID, chatID string) (*Chat, int) {
	for i, c := range s.chats[userID] {
		if c.ID == chatID {
			return c, i
		}
	}
	return nil, -1
}

func copyChat(c *Chat) Chat {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}
