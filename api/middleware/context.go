package middleware

import "context"

type contextKey string

const ctxSessionEmail contextKey = "session_email"

// SessionEmailFromContext returns the email of the verified session, if any.
func SessionEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionEmail).(string); ok {
		return v
	}
	return ""
}

func withSessionEmail(ctx context.Context, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionEmail, email)
}
