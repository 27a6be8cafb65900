package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// routePattern returns the matched chi route template (e.g.
// "/api/devices/{id}") rather than the literal path, so per-route metrics
// don't explode into one series per device ID.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// apiKeyMiddleware gates state-changing routes behind a single shared API
// key, the api-key-only auth mode §6 scopes the northbound API to (session
// auth/CSRF remain out of scope). Checked via header first, then query
// parameter, mirroring the pack's TokenAuthMiddleware precedence.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = r.URL.Query().Get("api_key")
			}
			if provided == "" || provided != apiKey {
				hlog.FromRequest(r).Warn().Msg("rejected request: missing or invalid api key")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// correlationIDMiddleware stamps every request/response with an
// X-Correlation-ID, generating one when the caller didn't supply it.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)

		log := hlog.FromRequest(r)
		log.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("correlation_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records per-route request count and latency, grounded on
// the pack's HTTPMetricsMiddleware status-capturing wrapper.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)

		route := routePattern(r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(lw.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
