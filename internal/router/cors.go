package router

import (
	"net/http"
	"strings"
)

// CORS decorates every response with access-control headers for origins on
// the allow-list. Preflight requests are answered here and never reach the
// handlers.
type CORS struct {
	allowed map[string]struct{}
}

func NewCORS(origins []string) *CORS {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = normalizeOrigin(strings.TrimSpace(o)); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &CORS{allowed: allowed}
}

// normalizeOrigin strips a single trailing slash.
func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(origin, "/")
}

// Allowed returns the canonical origin and whether it is on the allow-list.
func (c *CORS) Allowed(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	origin = normalizeOrigin(origin)
	_, ok := c.allowed[origin]
	return origin, ok
}

func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")
		if origin, ok := c.Allowed(r.Header.Get("Origin")); ok {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", requestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
