package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/unrolled/secure"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// CORSConfig represents CORS configuration options
type CORSConfig struct {
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowedOrigins   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the methods the API serves and lets browsers read
// the correlation ID of a response.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization", logger.CorrelationIDHeader},
		AllowedOrigins:   []string{"https://*", "http://*"},
		ExposedHeaders:   []string{logger.CorrelationIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// CORS middleware configures Cross-Origin Resource Sharing
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowedOrigins:   config.AllowedOrigins,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
}

// apiContentSecurityPolicy forbids every fetch and framing. Responses are JSON
// or websocket frames and never render as documents.
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// APISecurityOptions returns security headers for a JSON and websocket API.
// HSTS is only sent in production.
func APISecurityOptions(production bool) *secure.Options {
	opts := &secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: apiContentSecurityPolicy,
	}
	if production {
		opts.STSSeconds = 31536000
		opts.STSIncludeSubdomains = true
	}
	return opts
}

// Security middleware adds security headers. A nil opts uses APISecurityOptions
// for development.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		opts = APISecurityOptions(false)
	}
	return secure.New(*opts).Handler
}
