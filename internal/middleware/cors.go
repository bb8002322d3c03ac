package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders = "Authorization, Content-Type, X-Locale, X-Request-ID, Idempotency-Key"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

// Origins is a browser origin allow-list. A single "*" entry allows any
// origin without credentials.
type Origins struct {
	allow    map[string]struct{}
	wildcard bool
}

func NewOrigins(allowedOrigins []string) Origins {
	o := Origins{allow: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			o.wildcard = true
			continue
		}
		if origin != "" {
			o.allow[origin] = struct{}{}
		}
	}
	return o
}

// Listed reports whether origin is named explicitly.
func (o Origins) Listed(origin string) bool {
	_, ok := o.allow[origin]
	return ok
}

// Allowed reports whether origin is listed or covered by the wildcard.
func (o Origins) Allowed(origin string) bool {
	return o.wildcard || o.Listed(origin)
}

// CORS allows the listed origins. Preflight requests are answered here and
// never reach next.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := NewOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				h := w.Header()
				h.Add("Vary", "Origin")
				if origins.Listed(origin) {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
				} else if origins.Allowed(origin) {
					h.Set("Access-Control-Allow-Origin", "*")
				}
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if w.Header().Get("Access-Control-Allow-Origin") != "" {
					w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
					w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
					w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
