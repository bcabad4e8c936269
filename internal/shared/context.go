package shared

import "context"

type sessionContextKey struct{}

type bearerContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithBearer marks the request as authenticated by bearer token
// rather than by session cookie.
func ContextWithBearer(ctx context.Context) context.Context {
	return context.WithValue(ctx, bearerContextKey{}, true)
}

// IsBearer reports whether the session was located through a bearer token.
func IsBearer(ctx context.Context) bool {
	ok, _ := ctx.Value(bearerContextKey{}).(bool)
	return ok
}
