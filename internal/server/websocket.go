package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lewisedginton/companion_chatbot/internal/companion"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 64 * 1024
	wsQueueSize      = 16
)

// Frame types sent to websocket clients.
const (
	FrameReply = "reply"
	FrameError = "error"
)

// wsFrame is one server to client message.
type wsFrame struct {
	Type   string           `json:"type"`
	Reply  *companion.Reply `json:"reply,omitempty"`
	Error  string           `json:"error,omitempty"`
	Status int              `json:"status,omitempty"`
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
}

// chatSocket streams replies for one chat. Each text frame carries the same
// payload as POST .../messages and is answered in order.
func (a *api) chatSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	chatID := chi.URLParam(r, "chatID")
	log := logger.GetLoggerFromContext(r.Context(), a.log).WithFields(
		logger.UserIDField(userID),
		logger.StringField("chat_id", chatID))

	// unknown chats are rejected before the upgrade so clients get a plain 404
	if _, err := a.chats.GetChat(r.Context(), userID, chatID); err != nil {
		a.handleError(w, r, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.Warn("Websocket upgrade failed", logger.ErrorField(err))
		return
	}
	log.Info("Websocket session opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-a.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	s := &chatSession{
		api:    a,
		conn:   conn,
		userID: userID,
		chatID: chatID,
		log:    log,
		send:   make(chan wsFrame, wsQueueSize),
	}
	s.run(ctx, cancel)
	log.Info("Websocket session closed")
}

type chatSession struct {
	api    *api
	conn   *websocket.Conn
	userID string
	chatID string
	log    logger.Logger
	send   chan wsFrame
}

func (s *chatSession) run(ctx context.Context, cancel context.CancelFunc) {
	frames := make(chan messageRequest, wsQueueSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.writePump(ctx)
	}()
	go s.process(ctx, frames)

	s.readPump(ctx, frames)
	cancel()
	<-done
}

// readPump decodes client frames until the connection fails or closes.
func (s *chatSession) readPump(ctx context.Context, frames chan<- messageRequest) {
	defer close(frames)

	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Websocket read error", logger.ErrorField(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var req messageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.emit(ctx, wsFrame{Type: FrameError, Error: "invalid JSON frame", Status: http.StatusBadRequest})
			continue
		}

		select {
		case frames <- req:
		case <-ctx.Done():
			return
		}
	}
}

// process answers frames one at a time so replies keep the order of messages.
func (s *chatSession) process(ctx context.Context, frames <-chan messageRequest) {
	for req := range frames {
		if ctx.Err() != nil {
			return
		}

		reqCtx := ctx
		var cancel context.CancelFunc = func() {}
		if s.api.requestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, s.api.requestTimeout)
		}
		reply, err := s.api.companion.Reply(reqCtx, s.api.replyRequest(s.userID, s.chatID, req))
		cancel()

		if err != nil {
			status, msg := statusFor(err)
			if status >= http.StatusInternalServerError {
				s.log.Error("Websocket reply failed", logger.ErrorField(err), logger.HTTPStatusField(status))
			}
			s.emit(ctx, wsFrame{Type: FrameError, Error: msg, Status: status})
			continue
		}
		s.emit(ctx, wsFrame{Type: FrameReply, Reply: reply})
	}
}

func (s *chatSession) emit(ctx context.Context, frame wsFrame) {
	select {
	case s.send <- frame:
	case <-ctx.Done():
	}
}

// writePump writes frames and pings until ctx is cancelled or a write fails.
func (s *chatSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return

		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("Websocket write failed", logger.ErrorField(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
