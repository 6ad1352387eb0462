package middleware

import "context"

type contextKey string

const ctxAdminEmail contextKey = "admin_email"

// AdminEmailFromContext returns the authenticated admin's email, or "".
func AdminEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminEmail).(string); ok {
		return v
	}
	return ""
}

// WithAdminEmail injects the admin email into the context.
func WithAdminEmail(ctx context.Context, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAdminEmail, email)
}
