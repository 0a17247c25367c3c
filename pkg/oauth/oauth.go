// Package oauth brokers downstream OAuth 2.1 authorization to MCP servers
// on behalf of a platform-authenticated user (spec §4.7.2). It is a
// distinct concern from pkg/auth: pkg/auth answers "who is calling us",
// this package answers "what bearer token do we present to a given
// downstream server for this user".
package oauth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// TokenData is the opaque, persisted shape of a downstream OAuth token,
// matching spec §4.7.2's OAuth2AuthData.
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
}

// safetyMargin is subtracted from ExpiresAt before a token is considered
// usable without refresh, per spec §4.7.2 step 2 ("now < expires_at -
// safety_margin").
const safetyMargin = 60 * time.Second

func (t *TokenData) usable(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt.Add(-safetyMargin))
}

// CompositeKey builds the scope-order-independent storage key
// "{auth_server}|{sorted_scopes}" per spec §4.7.2.
func CompositeKey(authServer string, scopes []string) string {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)
	return authServer + "|" + strings.Join(sorted, ",")
}

// Storage persists TokenData per (user_id, composite key), matching spec
// §4.7.2's SecureAuthStorageManager. No secret is ever logged by any
// implementation.
type Storage interface {
	Store(ctx context.Context, userID, key string, data *TokenData) error
	Retrieve(ctx context.Context, userID, key string) (*TokenData, error)
	Delete(ctx context.Context, userID, key string) error
}

// ErrNotFound is returned by Storage.Retrieve when no token is stored
// under the given (user_id, key).
var ErrNotFound = errors.New("oauth: token not found")

// AuthRequired is raised when resolution cannot produce a usable
// Authorization header; it carries everything the handler needs to build
// an AuthChallenge entry.
type AuthRequired struct {
	ServerName string
	AuthServer string
	Scopes     []string
}

func (e *AuthRequired) Error() string {
	return "oauth: authorization required for " + e.ServerName
}

// Refresher exchanges a refresh_token for a new TokenData against an
// authorization server, and builds PKCE-bearing authorization URLs.
// Implemented by Broker using golang.org/x/oauth2; an interface so
// discovery/resolution code can be tested with a fake.
type Refresher interface {
	Refresh(ctx context.Context, authServer string, tok *TokenData) (*TokenData, error)
	AuthorizationURL(authServer, flowID string, scopes []string, resourceURI string) string
}
