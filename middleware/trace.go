package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type traceKey struct{}

const traceHeader = "X-Request-ID"

// TraceID tags every request with an ID that follows it through logs and
// error responses. An incoming X-Request-ID is honored only when it parses
// as a UUID; anything else is replaced.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), traceKey{}, traceID)
		w.Header().Set(traceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceKey{}).(string); ok {
		return traceID
	}
	return ""
}
