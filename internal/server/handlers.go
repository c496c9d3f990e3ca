package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/companion_chatbot/internal/companion"
	"github.com/lewisedginton/companion_chatbot/internal/memory_service"
	"github.com/lewisedginton/companion_chatbot/internal/persistence"
	"github.com/lewisedginton/companion_chatbot/internal/prompt_builder"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// MemoryService is the part of the memory manager the API exposes.
type MemoryService interface {
	AddMemory(ctx context.Context, userID, text string) error
	GetRelevantMemories(ctx context.Context, userID, query string, k int) ([]string, error)
	Memories(ctx context.Context, userID string) ([]string, error)
}

// Replier produces companion replies.
type Replier interface {
	Reply(ctx context.Context, req companion.ReplyRequest) (*companion.Reply, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type addMemoryRequest struct {
	Text string `json:"text"`
}

type memoriesResponse struct {
	UserID   string   `json:"user_id"`
	Memories []string `json:"memories"`
	Warning  string   `json:"warning,omitempty"`
}

type createChatRequest struct {
	Title string `json:"chat_title"`
}

// messageRequest is the payload for both the HTTP and websocket chat endpoints.
type messageRequest struct {
	Message           string   `json:"message"`
	RelationshipStage string   `json:"relationship_stage"`
	PersonalityTraits []string `json:"personality_traits"`
	// Remember falls back to the configured default when omitted.
	Remember *bool `json:"remember"`
}

func (a *api) replyRequest(userID, chatID string, req messageRequest) companion.ReplyRequest {
	remember := a.rememberByDefault
	if req.Remember != nil {
		remember = *req.Remember
	}
	return companion.ReplyRequest{
		UserID:   userID,
		ChatID:   chatID,
		Message:  req.Message,
		Stage:    req.RelationshipStage,
		Traits:   req.PersonalityTraits,
		Remember: remember,
	}
}

func (a *api) listStages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stages":  prompt_builder.Stages(),
		"default": prompt_builder.DefaultStage().Name,
	})
}

func (a *api) addMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req addMemoryRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	resp := map[string]string{"status": "stored"}
	if err := a.memories.AddMemory(r.Context(), userID, req.Text); err != nil {
		if !errors.Is(err, memory_service.ErrPersistence) {
			a.handleError(w, r, err)
			return
		}
		// the memory is held in memory; only the snapshot is behind
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *api) listMemories(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	resp := memoriesResponse{UserID: userID}
	memories, err := a.memories.Memories(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, memory_service.ErrPersistence) {
			a.handleError(w, r, err)
			return
		}
		resp.Warning = err.Error()
	}
	resp.Memories = nonNil(memories)
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) searchMemories(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	query := r.URL.Query().Get("q")

	k := a.memoryK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		k = parsed
	}

	memories, err := a.memories.GetRelevantMemories(r.Context(), userID, query, k)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memoriesResponse{UserID: userID, Memories: nonNil(memories)})
}

func (a *api) createChat(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req createChatRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}

	chat, err := a.chats.CreateChat(r.Context(), userID, req.Title)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (a *api) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := a.chats.ListChats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	if chats == nil {
		chats = []persistence.Chat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (a *api) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := a.chats.GetChat(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "chatID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (a *api) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := a.chats.DeleteChat(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "chatID")); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !a.decode(w, r, &req) {
		return
	}

	reply, err := a.companion.Reply(r.Context(), a.replyRequest(chi.URLParam(r, "userID"), chi.URLParam(r, "chatID"), req))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, persistence.ErrChatNotFound):
		return http.StatusNotFound, persistence.ErrChatNotFound.Error()
	case errors.Is(err, companion.ErrEmptyMessage),
		errors.Is(err, memory_service.ErrInvalidK),
		errors.Is(err, memory_service.ErrInvalidUserID),
		errors.Is(err, persistence.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, companion.ErrGenerationFailed):
		return http.StatusBadGateway, companion.ErrGenerationFailed.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (a *api) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	log := logger.GetLoggerFromContext(r.Context(), a.log)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", logger.ErrorField(err), logger.HTTPStatusField(status))
	} else {
		log.Debug("Request rejected", logger.ErrorField(err), logger.HTTPStatusField(status))
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
