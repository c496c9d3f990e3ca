package httpmiddleware

import (
	"net/http"
	"strings"
)

// StripPrefix removes prefix from request paths so the API can be mounted under
// a gateway path such as /companion. Only whole segments match: /companion-x is
// left alone. A request for the bare prefix is routed as "/".
func StripPrefix(prefix string) func(http.Handler) http.Handler {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rest, ok := trimSegmentPrefix(r.URL.Path, prefix); ok {
				r.URL.Path = rest
				if r.URL.RawPath != "" {
					r.URL.RawPath, _ = trimSegmentPrefix(r.URL.RawPath, prefix)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimSegmentPrefix(path, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || (rest != "" && rest[0] != '/') {
		return path, false
	}
	if rest == "" {
		rest = "/"
	}
	return rest, true
}
