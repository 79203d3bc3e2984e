package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Typed context key to avoid collisions.
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// TracingMiddleware assigns each request a trace ID: reuse the caller's
// X-Trace-ID if present, mint one otherwise, and echo it in the response.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000"
}
