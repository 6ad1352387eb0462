package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tierlink/tierlink-backend/api/responses"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

const cronTokenHeader = "X-Cron-Token"

// CronToken guards the manual job-trigger endpoints with a shared secret.
// An empty configured token disables the endpoints entirely.
func CronToken(token string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "not found"))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(cronTokenHeader))
			if provided == "" {
				raw := strings.TrimSpace(r.Header.Get("Authorization"))
				if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
					provided = strings.TrimSpace(raw[7:])
				}
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
