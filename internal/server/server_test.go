package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
	"github.com/lewisedginton/companion_chatbot/internal/companion"
	"github.com/lewisedginton/companion_chatbot/internal/embedding"
	"github.com/lewisedginton/companion_chatbot/internal/memory_service"
	"github.com/lewisedginton/companion_chatbot/internal/persistence"
	"github.com/lewisedginton/companion_chatbot/internal/sentiment"
	"github.com/lewisedginton/companion_chatbot/internal/storage_manager"
	"github.com/lewisedginton/companion_chatbot/pkg/health"
	"github.com/lewisedginton/companion_chatbot/pkg/health/checkers"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/lewisedginton/companion_chatbot/pkg/metrics"
)

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, systemPrompt, userMessage string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, systemPrompt)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "echo: " + userMessage, nil
}

func (g *stubGenerator) Name() string { return "stub" }

type testEnv struct {
	api       *api
	handler   http.Handler
	memories  *memory_service.Manager
	chats     *persistence.MemoryChatStore
	generator *stubGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNopLogger()

	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	memories, err := memory_service.New(memory_service.Config{
		FileProvider: provider,
		Embedder:     embedding.NewHashEmbedder(64),
		Logger:       log,
	})
	require.NoError(t, err)

	chats := persistence.NewMemoryChatStore()
	gen := &stubGenerator{}
	service := companion.New(companion.Config{
		Memories:  memories,
		Sentiment: sentiment.NewAnalyzer(sentiment.AnalyzerConfig{Logger: log}),
		Generator: gen,
		Chats:     chats,
		Logger:    log,
	})

	h := health.New(health.WithFailureThreshold(1))
	h.AddReadinessCheck(checkers.NewStorageChecker(provider, ""))
	h.AddReadinessCheck(checkers.NewBreakerChecker("embedding", breaker.New(breaker.DefaultConfig("embedding"))), health.NonCritical())

	a := &api{
		log:               log,
		memories:          memories,
		chats:             chats,
		companion:         service,
		health:            h,
		metrics:           metrics.NewMetrics(true, log),
		upgrader:          newUpgrader([]string{"http://localhost:3000"}),
		closing:           make(chan struct{}),
		memoryK:           memory_service.DefaultK,
		rememberByDefault: true,
		requestTimeout:    5 * time.Second,
		maxBodySize:       1 << 20,
		allowedOrigins:    []string{"http://localhost:3000"},
	}
	return &testEnv{api: a, handler: a.routes(), memories: memories, chats: chats, generator: gen}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPingAndHealth(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, LivenessPath, nil).Code)

	rec := env.do(t, http.MethodGet, ReadinessPath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[health.HealthResponse](t, rec)
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "snapshot-storage")
}

func TestListStages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[struct {
		Stages []struct {
			Name string `json:"name"`
		} `json:"stages"`
		Default string `json:"default"`
	}](t, rec)
	assert.Equal(t, "acquaintance", resp.Default)
	require.NotEmpty(t, resp.Stages)
	assert.Equal(t, "acquaintance", resp.Stages[0].Name)
}

func TestPathPrefix(t *testing.T) {
	env := newTestEnv(t)
	env.api.pathPrefix = "/companion"
	env.handler = env.api.routes()

	rec := env.do(t, http.MethodGet, "/companion/api/stages", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/companion"+ReadinessPath, nil).Code)
	assert.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/companion/api/users/u1/chats", map[string]string{"chat_title": "Hi"}).Code)

	// unprefixed paths still resolve for in-cluster callers
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/stages", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/companions/api/stages", nil).Code)
}

func TestMemoryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, text := range []string{"I love hiking in the mountains", "My cat is called Luna", "I work as a nurse"} {
		rec := env.do(t, http.MethodPost, "/api/users/u1/memories", addMemoryRequest{Text: text})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/users/u1/memories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[memoriesResponse](t, rec)
	assert.Equal(t, []string{"I love hiking in the mountains", "My cat is called Luna", "I work as a nurse"}, list.Memories)

	rec = env.do(t, http.MethodGet, "/api/users/u1/memories/search?q=My+cat+is+called+Luna&k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeBody[memoriesResponse](t, rec)
	assert.Equal(t, []string{"My cat is called Luna"}, found.Memories)

	rec = env.do(t, http.MethodGet, "/api/users/u1/memories/search?q=anything&k=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[memoriesResponse](t, rec).Memories, 3)

	rec = env.do(t, http.MethodGet, "/api/users/nobody/memories/search?q=anything", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{}, decodeBody[memoriesResponse](t, rec).Memories)
}

func TestMemoryValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty text", http.MethodPost, "/api/users/u1/memories", addMemoryRequest{Text: "  "}, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/api/users/u1/memories", nil, http.StatusBadRequest},
		{"non-numeric k", http.MethodGet, "/api/users/u1/memories/search?q=x&k=abc", nil, http.StatusBadRequest},
		{"zero k", http.MethodGet, "/api/users/u1/memories/search?q=x&k=0", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[errorResponse](t, rec).Error)
		})
	}
}

func TestChatLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/users/u1/chats", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	chat := decodeBody[persistence.Chat](t, rec)
	assert.Equal(t, persistence.DefaultChatTitle, chat.Title)
	require.NotEmpty(t, chat.ID)

	rec = env.do(t, http.MethodPost, "/api/users/u1/chats", createChatRequest{Title: "Evening talk"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/users/u1/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[struct {
		Chats []persistence.Chat `json:"chats"`
	}](t, rec)
	assert.Len(t, listed.Chats, 2)

	msgPath := fmt.Sprintf("/api/users/u1/chats/%s/messages", chat.ID)
	rec = env.do(t, http.MethodPost, msgPath, map[string]any{
		"message":            "I just adopted a puppy",
		"relationship_stage": "friend",
		"personality_traits": []string{"playful"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decodeBody[companion.Reply](t, rec)
	require.Len(t, reply.Messages, 2)
	assert.Equal(t, persistence.RoleUser, reply.Messages[0].Role)
	assert.Equal(t, "echo: I just adopted a puppy", reply.Messages[1].Text)
	assert.Equal(t, "friend", reply.Stage)

	// remembered by default
	memories, err := env.memories.Memories(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"I just adopted a puppy"}, memories)

	rec = env.do(t, http.MethodGet, "/api/users/u1/chats/"+chat.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[persistence.Chat](t, rec).Messages, 2)

	rec = env.do(t, http.MethodDelete, "/api/users/u1/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/users/u1/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageOptOutOfMemory(t *testing.T) {
	env := newTestEnv(t)
	chat, err := env.chats.CreateChat(context.Background(), "u1", "")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/users/u1/chats/"+chat.ID+"/messages", map[string]any{
		"message":  "keep this between us",
		"remember": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := env.memories.Count(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)
	chat, err := env.chats.CreateChat(context.Background(), "u1", "")
	require.NoError(t, err)
	path := "/api/users/u1/chats/" + chat.ID + "/messages"

	rec := env.do(t, http.MethodPost, path, map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/users/u1/chats/chat-missing/messages", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/users/u2/chats/"+chat.ID+"/messages", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "chats are scoped to their owner")

	env.generator.err = errors.New("upstream overloaded")
	rec = env.do(t, http.MethodPost, path, map[string]any{"message": "hello?"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, companion.ErrGenerationFailed.Error(), decodeBody[errorResponse](t, rec).Error)

	stored, err := env.chats.GetChat(context.Background(), "u1", chat.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Messages)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.api.maxBodySize = 64
	handler := env.api.routes()

	body := `{"text":"` + strings.Repeat("a", 200) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/memories", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{persistence.ErrChatNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", persistence.ErrChatNotFound), http.StatusNotFound},
		{companion.ErrEmptyMessage, http.StatusBadRequest},
		{memory_service.ErrInvalidK, http.StatusBadRequest},
		{memory_service.ErrInvalidUserID, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", companion.ErrGenerationFailed, context.DeadlineExceeded), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, msg := statusFor(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestUpgraderCheckOrigin(t *testing.T) {
	u := newUpgrader([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, u.CheckOrigin(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, u.CheckOrigin(req))

	assert.True(t, newUpgrader([]string{"*"}).CheckOrigin(req))
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebsocketChat(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	chat, err := env.chats.CreateChat(context.Background(), "u1", "")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/users/u1/chats/"+chat.ID), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"message": "first", "remember": false}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"message": "second", "relationship_stage": "partner"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []wsFrame
	for i := 0; i < 3; i++ {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
	}

	// the malformed frame is rejected by the reader before the queued replies are written
	var replies []wsFrame
	for _, f := range frames {
		if f.Type == FrameError {
			assert.Equal(t, http.StatusBadRequest, f.Status)
			continue
		}
		replies = append(replies, f)
	}
	require.Len(t, replies, 2)
	assert.Equal(t, "echo: first", replies[0].Reply.Messages[1].Text)
	assert.Equal(t, "echo: second", replies[1].Reply.Messages[1].Text)
	assert.Equal(t, "partner", replies[1].Reply.Stage)

	stored, err := env.chats.GetChat(context.Background(), "u1", chat.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4)

	count, err := env.memories.Count(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWebsocketUnknownChat(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/users/u1/chats/chat-missing"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketClosedOnShutdown(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	chat, err := env.chats.CreateChat(context.Background(), "u1", "")
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/users/u1/chats/"+chat.ID), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	close(env.api.closing)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
