// Package admin guards maintenance endpoints with a static shared secret.
// It never consults the user authorization gate.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"chapel/pkg/platform/httputil"
	"chapel/pkg/requestcontext"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeDisabled     = "PROMOTE_DISABLED"
)

// RequireSharedSecret accepts only `Authorization: Bearer <secret>`.
// An empty configured secret disables the wrapped routes entirely.
func RequireSharedSecret(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			if secret == "" {
				logger.WarnContext(ctx, "shared-secret route called but no secret configured",
					"request_id", requestID,
					"path", r.URL.Path,
				)
				httputil.WriteErrorCode(w, http.StatusServiceUnavailable, CodeDisabled, "This endpoint is disabled")
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				logger.WarnContext(ctx, "shared secret mismatch",
					"request_id", requestID,
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
