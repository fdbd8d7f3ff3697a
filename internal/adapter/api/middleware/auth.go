package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// RunTokenHeader carries the shared-secret credential. A ?token= query
// parameter is accepted as a fallback for tooling that cannot set headers.
const RunTokenHeader = "X-Run-Token"

// Auth is a middleware factory guarding endpoints with a shared secret.
// An empty configured token is an operator-facing misconfiguration and is
// reported distinctly from a bad client credential.
func Auth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				logger.Error("admin token not configured, rejecting request", "path", r.URL.Path)
				http.Error(w, "Service misconfigured: admin token not set", http.StatusServiceUnavailable)
				return
			}

			provided := r.Header.Get(RunTokenHeader)
			if provided == "" {
				provided = r.URL.Query().Get("token")
			}
			if provided == "" {
				logger.Warn("token missing from request", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("invalid token provided", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
