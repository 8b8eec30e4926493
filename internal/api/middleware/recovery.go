package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// panicProblem is the RFC 7807 body written when a handler panics. The
// status API's richer problem writer lives a package up; a minimal local
// shape avoids an import cycle with it.
type panicProblem struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	Instance      string `json:"instance"`
	CorrelationID string `json:"correlationId"`
}

// Recovery converts handler panics into 500 responses. The panic value and
// stack are logged with the request's correlation ID so the response can be
// traced back to the crash.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}

				correlationID := GetCorrelationID(r.Context())

				logger.Error("HTTP request panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
					slog.Any("panic", v),
					slog.String("stack_trace", string(debug.Stack())),
				)

				body := panicProblem{
					Type:          fmt.Sprintf("https://filepipe.io/problems/%d", http.StatusInternalServerError),
					Title:         "Internal Server Error",
					Status:        http.StatusInternalServerError,
					Detail:        "An unexpected error occurred while processing the request",
					Instance:      r.URL.Path,
					CorrelationID: correlationID,
				}

				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)

				if err := json.NewEncoder(w).Encode(body); err != nil {
					logger.Error("Failed to encode error response",
						slog.Any("error", err),
						slog.String("correlation_id", correlationID),
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
