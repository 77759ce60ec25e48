package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/completion"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user"
)

const requestIDHeader = "X-Request-ID"

// Options carries everything the router mounts. The allow-list is copied.
type Options struct {
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
	// TokenSecretSet is false when no signing secret is configured; every
	// request then fails with server_misconfigured.
	TokenSecretSet bool

	Resolver   *token.Resolver
	TrialGate  *user.TrialGate
	RateLimit  *RateLimiter
	Metrics    *Metrics
	Users      *user.Handler
	Dreams     *dream.Handler
	Completion *completion.Handler
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware tags every response with a request id and logs the
// request at debug level.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" || len(reqID) > 128 {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative headers suited to a JSON API.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// misconfigGuard fails every request when the token secret is missing.
func misconfigGuard(ok bool, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apierr.Write(w, logger, fmt.Errorf("%w: token secret is not set", apierr.ErrMisconfigured))
		})
	}
}

// discardWriter records the status the mux would have answered with.
type discardWriter struct {
	header http.Header
	status int
}

func (d *discardWriter) Header() http.Header { return d.header }
func (d *discardWriter) Write(b []byte) (int, error) {
	if d.status == 0 {
		d.status = http.StatusOK
	}
	return len(b), nil
}
func (d *discardWriter) WriteHeader(code int) {
	if d.status == 0 {
		d.status = code
	}
}

// jsonFallback answers unmatched paths and methods with the JSON envelope
// instead of the mux's plain text.
func jsonFallback(mux *http.ServeMux, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		d := &discardWriter{header: http.Header{}}
		mux.ServeHTTP(d, r)
		if d.status == http.StatusMethodNotAllowed {
			if allow := d.header.Get("Allow"); allow != "" {
				w.Header().Set("Allow", allow)
			}
			apierr.Write(w, logger, apierr.ErrMethod)
			return
		}
		apierr.Write(w, logger, apierr.ErrNotFound)
	})
}

// Health is the unauthenticated liveness probe.
func Health(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UnixMilli()})
}

// New mounts the API on a stdlib ServeMux and wraps it, outermost first, with
// logging, metrics, CORS, security headers and the misconfiguration guard.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	limit := func(h http.HandlerFunc) http.Handler {
		if opts.RateLimit == nil {
			return h
		}
		return opts.RateLimit.Handler(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return opts.Resolver.Require(h)
	}
	gated := func(h http.HandlerFunc) http.Handler {
		return opts.Resolver.Require(opts.TrialGate.Require(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", Health)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("POST /register", limit(opts.Users.Register))
	mux.Handle("POST /login", limit(opts.Users.Login))
	mux.Handle("GET /me", authed(opts.Users.Me))
	mux.Handle("POST /sessions/revoke", authed(opts.Users.RevokeSessions))

	mux.Handle("GET /dreams", gated(opts.Dreams.List))
	mux.Handle("POST /dreams", gated(opts.Dreams.Create))
	mux.Handle("GET /dreams/{id}", gated(opts.Dreams.Get))
	mux.Handle("PUT /dreams/{id}", gated(opts.Dreams.Update))
	mux.Handle("DELETE /dreams/{id}", gated(opts.Dreams.Delete))
	// {id} never matches an empty segment; these answer the missing id.
	mux.Handle("GET /dreams/{$}", gated(opts.Dreams.Get))
	mux.Handle("PUT /dreams/{$}", gated(opts.Dreams.Update))
	mux.Handle("DELETE /dreams/{$}", gated(opts.Dreams.Delete))

	mux.Handle("POST /summarize", gated(opts.Completion.Summarize))
	mux.Handle("POST /analyze", gated(opts.Completion.Analyze))
	mux.Handle("POST /find_similar", gated(opts.Completion.FindSimilar))

	cors := NewCORS(append([]string(nil), opts.AllowedOrigins...))

	var h http.Handler = jsonFallback(mux, logger)
	h = misconfigGuard(opts.TokenSecretSet, logger)(h)
	h = SecurityHeadersMiddleware()(h)
	h = cors.Handler(h)
	h = metrics.Instrument(h)
	h = LoggingMiddleware(logger)(h)
	return h
}
