// Package auth implements platform authentication (spec §4.7.1): verifying
// that the caller is who they claim to be and extracting a stable user_id.
//
// Downstream OAuth2 brokering to MCP servers (spec §4.7.2) lives in
// pkg/oauth; this package is concerned only with the inbound
// "Authorization: Bearer <token>" header on every request.
package auth

import (
	"context"
	"errors"
)

// ErrNotAuthenticated is returned by Authorizer.AuthorizeRequest when the
// header is missing, malformed, or the token fails verification.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// Authorizer verifies an inbound Authorization header and returns the
// caller's user_id.
type Authorizer interface {
	AuthorizeRequest(ctx context.Context, authHeader string) (userID string, err error)
}

// claimPrecedence is the order spec §4.7.1 mandates for deriving user_id
// from a verified token: "the first present of claims preferred_username,
// upn, email, sub, oid".
var claimPrecedence = []string{"preferred_username", "upn", "email", "sub", "oid"}

// userIDFromClaims applies the claim-precedence chain over a generic claim
// set. Used by JWTAuthorizer so the precedence logic is independently
// testable without a live JWKS endpoint.
func userIDFromClaims(get func(name string) (string, bool)) (string, error) {
	for _, name := range claimPrecedence {
		if v, ok := get(name); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("auth: token carries none of preferred_username/upn/email/sub/oid")
}
