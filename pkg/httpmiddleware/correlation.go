package httpmiddleware

import (
	"net/http"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// CorrelationID ensures every request carries a UUID correlation ID in its
// header and context. A valid client-supplied ID is kept so a web client can
// tie its own logs to ours; anything else is replaced. The ID is echoed on
// the response.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, correlationID := logger.EnsureHTTPCorrelationID(r)
			w.Header().Set(logger.CorrelationIDHeader, correlationID)
			next.ServeHTTP(w, r)
		})
	}
}
