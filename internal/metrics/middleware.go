package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMiddleware records request count, duration and error class per route
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		// Route pattern is only known after routing
		path := routePattern(r)
		status := strconv.Itoa(wrapped.status)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

		if wrapped.status >= 400 {
			m.HTTPErrorsTotal.WithLabelValues(categorizeStatus(wrapped.status)).Inc()
		}
	})
}

// routePattern returns the chi route pattern so group ids do not become labels
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// categorizeStatus categorizes HTTP status codes into error types
func categorizeStatus(status int) string {
	switch {
	case status == http.StatusBadGateway:
		return "webhook_error"
	case status >= 500:
		return "server_error"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth_error"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return "bad_request"
	case status == http.StatusConflict:
		return "busy"
	case status >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
