package auth

import "context"

// DummyAuthorizer extracts user_id directly from the Bearer literal, for
// tests and local development (spec §4.7.1: "A dummy authorizer may
// extract user_id from the Bearer <value> literal").
type DummyAuthorizer struct{}

var _ Authorizer = DummyAuthorizer{}

func (DummyAuthorizer) AuthorizeRequest(_ context.Context, authHeader string) (string, error) {
	token, ok := bearerToken(authHeader)
	if !ok {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

// contextKey is a private type for context keys to avoid collisions,
// matching the teacher's pattern in pkg/auth/claims.go.
type contextKey string

const userIDContextKey contextKey = "agentserver_auth_user_id"

// ContextWithUserID returns a new context carrying the authenticated user_id.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext extracts the authenticated user_id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDContextKey).(string)
	return v, ok
}
