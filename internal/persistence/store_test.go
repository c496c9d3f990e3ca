package persistence

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

const testDatabaseURLEnv = "COMPANION_TEST_DATABASE_URL"

func newTestLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.DebugLevel, Output: io.Discard})
}

type storeFactory func(t *testing.T) ChatStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) ChatStore {
			return NewMemoryChatStore()
		},
		"postgres": func(t *testing.T) ChatStore {
			url := os.Getenv(testDatabaseURLEnv)
			if url == "" {
				t.Skipf("%s not set", testDatabaseURLEnv)
			}
			ctx := context.Background()
			pool, err := NewPool(ctx, PoolConfig{URL: url, MaxConnections: 4})
			require.NoError(t, err)

			require.NoError(t, NewMigrationManager(pool, newTestLogger()).RunMigrations())
			store := NewPostgresChatStore(pool, newTestLogger())
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func TestChatStoreContract(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			// unique per run so a shared database stays usable
			user := "user-" + strings.ReplaceAll(t.Name(), "/", "-") + time.Now().Format("150405.000000")

			first, err := store.CreateChat(ctx, user, "")
			require.NoError(t, err)
			assert.Equal(t, DefaultChatTitle, first.Title)
			assert.True(t, strings.HasPrefix(first.ID, "chat-"))
			assert.Empty(t, first.Messages)
			assert.False(t, first.CreatedAt.IsZero())

			second, err := store.CreateChat(ctx, user, "Weekend plans")
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)

			now := time.Now().UTC().Truncate(time.Millisecond)
			require.NoError(t, store.AppendMessages(ctx, user, second.ID,
				Message{Role: RoleUser, Text: "Any hiking ideas?", Timestamp: now},
				Message{Role: RoleBot, Text: "Try the coastal trail!", Timestamp: now.Add(time.Second)},
			))

			got, err := store.GetChat(ctx, user, second.ID)
			require.NoError(t, err)
			assert.Equal(t, "Weekend plans", got.Title)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, RoleUser, got.Messages[0].Role)
			assert.Equal(t, "Try the coastal trail!", got.Messages[1].Text)
			assert.True(t, now.Equal(got.Messages[0].Timestamp))

			chats, err := store.ListChats(ctx, user)
			require.NoError(t, err)
			require.Len(t, chats, 2)
			assert.Equal(t, first.ID, chats[0].ID)
			assert.Empty(t, chats[0].Messages)
			assert.Len(t, chats[1].Messages, 2)

			// other users cannot see or touch the chat
			_, err = store.GetChat(ctx, user+"-other", second.ID)
			assert.ErrorIs(t, err, ErrChatNotFound)
			assert.ErrorIs(t, store.DeleteChat(ctx, user+"-other", second.ID), ErrChatNotFound)
			assert.ErrorIs(t, store.AppendMessages(ctx, user+"-other", second.ID,
				Message{Role: RoleUser, Text: "x"}), ErrChatNotFound)

			require.NoError(t, store.DeleteChat(ctx, user, second.ID))
			assert.ErrorIs(t, store.DeleteChat(ctx, user, second.ID), ErrChatNotFound)

			chats, err = store.ListChats(ctx, user)
			require.NoError(t, err)
			assert.Len(t, chats, 1)
		})
	}
}

func TestChatStoreRejectsBadInput(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			chat, err := store.CreateChat(ctx, "u1", "t")
			require.NoError(t, err)

			err = store.AppendMessages(ctx, "u1", chat.ID, Message{Role: "system", Text: "x"})
			assert.ErrorIs(t, err, ErrInvalidRole)

			for _, bad := range []string{"", "not-an-id", "session-0b6c6f2c-8d3e-4b7e-9a43-2d8e3f2b1c11"} {
				_, err := store.GetChat(ctx, "u1", bad)
				assert.ErrorIs(t, err, ErrChatNotFound, bad)
				assert.ErrorIs(t, store.DeleteChat(ctx, "u1", bad), ErrChatNotFound, bad)
			}
		})
	}
}

func TestListChatsUnknownUser(t *testing.T) {
	chats, err := NewMemoryChatStore().ListChats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, chats)
	assert.Empty(t, chats)
}

func TestMemoryChatStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChatStore()

	chat, err := store.CreateChat(ctx, "u1", "t")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(ctx, "u1", chat.ID, Message{Role: RoleUser, Text: "hi"}))

	got, err := store.GetChat(ctx, "u1", chat.ID)
	require.NoError(t, err)
	got.Messages[0].Text = "changed"

	again, err := store.GetChat(ctx, "u1", chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Text)
}

func TestParseChatID(t *testing.T) {
	id := newChatID()
	parsed, err := parseChatID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = parseChatID("chat-nope")
	assert.ErrorIs(t, err, ErrChatNotFound)
}
