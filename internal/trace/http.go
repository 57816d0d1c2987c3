package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware continues the caller's trace from request headers, or starts one,
// and echoes the trace ID on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Continue(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// FromMessage continues the trace named by a WebSocket message's trace_id field.
// The bool reports whether the message carried a usable ID.
func FromMessage(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || !validID(msg.TraceID, 32) {
		return New(), false
	}
	return Continue(msg.TraceID, ""), true
}
