package auth

import "strings"

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value, grounded on the teacher's HTTPMiddleware prefix-strip logic.
func bearerToken(authHeader string) (string, bool) {
	if authHeader == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}
