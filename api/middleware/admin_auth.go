package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tierlink/tierlink-backend/api/responses"
	pkgauth "github.com/tierlink/tierlink-backend/pkg/auth"
	"github.com/tierlink/tierlink-backend/pkg/config"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type adminChecker interface {
	IsAdminEmail(ctx context.Context, email string) (bool, error)
}

// AdminAuth validates a bearer token and checks the email claim against
// the configured admin allowlist before seeding the request context.
func AdminAuth(cfg config.AdminConfig, allowlist adminChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			email := strings.ToLower(strings.TrimSpace(claims.Email))
			if allowlist != nil {
				ok, err := allowlist.IsAdminEmail(r.Context(), email)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check admin allowlist"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not an admin"))
					return
				}
			}

			ctx := WithAdminEmail(r.Context(), email)
			if logg != nil {
				ctx = logg.WithAdminEmail(ctx, email)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
