// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"net/http"

	"github.com/zavolah/marketplace/internal/logging"
)

// maxTraceIDLength bounds client-supplied trace ids.
const maxTraceIDLength = 128

// TracingMiddleware adds a trace ID to every request context and response.
type TracingMiddleware struct{}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = logging.NewTraceID()
		}

		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}
