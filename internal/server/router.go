package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lewisedginton/companion_chatbot/internal/persistence"
	"github.com/lewisedginton/companion_chatbot/pkg/health"
	"github.com/lewisedginton/companion_chatbot/pkg/httpmiddleware"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/lewisedginton/companion_chatbot/pkg/metrics"
)

// Health check paths served on the API port.
const (
	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)

// api holds the request handlers and what they depend on.
type api struct {
	log       logger.Logger
	memories  MemoryService
	chats     persistence.ChatStore
	companion Replier
	health    *health.HealthChecker
	metrics   *metrics.Metrics
	limiter   *httpmiddleware.RateLimiter
	upgrader  websocket.Upgrader
	// closing is closed on shutdown to end websocket sessions.
	closing chan struct{}

	memoryK           int
	rememberByDefault bool
	requestTimeout    time.Duration
	maxBodySize       int64
	allowedOrigins    []string
	pathPrefix        string
	production        bool
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()

	mw := httpmiddleware.DefaultConfig()
	mw.Logger = a.log
	mw.EnableLogging = true
	mw.Security = httpmiddleware.APISecurityOptions(a.production)
	mw.StripPrefix = a.pathPrefix
	mw.EnableStripPrefix = a.pathPrefix != ""
	mw.CORS.AllowedOrigins = a.allowedOrigins
	mw.MaxBodySize = a.maxBodySize
	mw.EnableBodyLimit = a.maxBodySize > 0
	mw.RateLimiter = a.limiter
	mw.EnableRateLimit = a.limiter != nil
	// applied to the API group only so websocket upgrades are not cut off
	mw.EnableTimeout = false
	mw.EnableCompression = false
	httpmiddleware.ApplyToRouter(r, mw)

	if a.metrics != nil {
		r.Use(a.metrics.HTTPMiddleware())
	}

	if a.health != nil {
		r.Get(LivenessPath, a.health.LivenessHandler())
		r.Get(ReadinessPath, a.health.ReadinessHandler())
	}

	r.Route("/api", func(r chi.Router) {
		if a.requestTimeout > 0 {
			r.Use(middleware.Timeout(a.requestTimeout))
		}
		r.Use(middleware.Compress(5))

		r.Get("/stages", a.listStages)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/memories", a.addMemory)
			r.Get("/memories", a.listMemories)
			r.Get("/memories/search", a.searchMemories)

			r.Post("/chats", a.createChat)
			r.Get("/chats", a.listChats)
			r.Get("/chats/{chatID}", a.getChat)
			r.Delete("/chats/{chatID}", a.deleteChat)
			r.Post("/chats/{chatID}/messages", a.sendMessage)
		})
	})

	r.Get("/ws/users/{userID}/chats/{chatID}", a.chatSocket)

	return r
}
