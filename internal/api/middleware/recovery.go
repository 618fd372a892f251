package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/arvindpillai/photoforge/internal/api/response"
)

// Recovery converts a handler panic into a 500 error envelope. Panics inside
// the styling pipeline never reach here; the queue absorbs those per attempt.
// This guards the synchronous request path only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic serving request",
					"panic", err,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
