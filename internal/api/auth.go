package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// BearerAuth rejects requests whose Authorization header does not carry
// token. Rejections are logged with the request ID. An empty token rejects
// everything.
func BearerAuth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")

			reason := ""
			switch {
			case auth == "":
				reason = "missing token"
			case !strings.HasPrefix(auth, prefix):
				reason = "not a bearer token"
			case token == "" || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1:
				reason = "token mismatch"
			}
			if reason != "" {
				logger.Warn("unauthorized request",
					"path", r.URL.Path,
					"reason", reason,
					"request_id", RequestIDFrom(r.Context()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="pal"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
