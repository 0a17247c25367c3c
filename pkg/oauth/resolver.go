package oauth

import (
	"context"
	"fmt"
	"time"
)

// ServerAuthConfig is the subset of McpServerConfig resolution needs.
type ServerAuthConfig struct {
	ServerName string
	AuthServer string
	Scopes     []string
}

// keyLocker is the minimal surface Resolver needs from
// internal/keylock.Map[string], declared locally so this package
// doesn't need to import the generic keylock type directly.
type keyLocker interface {
	WithLock(key string, fn func())
}

// Resolver implements spec §4.7.2's 4-step resolution algorithm, keyed
// per (user_id, composite key) so concurrent tool calls for the same
// user and server don't race each other's refresh.
type Resolver struct {
	storage   Storage
	refresher Refresher
	locks     keyLocker
}

// NewResolver builds a Resolver. locks should be an
// *internal/keylock.Map[string] keyed by "user_id|composite_key".
func NewResolver(storage Storage, refresher Refresher, locks keyLocker) *Resolver {
	return &Resolver{storage: storage, refresher: refresher, locks: locks}
}

// AuthHeader resolves an Authorization header value ("Bearer <token>")
// for a given user and downstream MCP server, or returns an error
// wrapping *AuthRequired when the caller must complete an OAuth
// challenge first.
func (r *Resolver) AuthHeader(ctx context.Context, userID string, cfg ServerAuthConfig) (string, error) {
	key := CompositeKey(cfg.AuthServer, cfg.Scopes)

	var header string
	var resolveErr error
	r.locks.WithLock(userID+"|"+key, func() {
		header, resolveErr = r.resolveLocked(ctx, userID, key, cfg)
	})
	return header, resolveErr
}

func (r *Resolver) resolveLocked(ctx context.Context, userID, key string, cfg ServerAuthConfig) (string, error) {
	tok, err := r.storage.Retrieve(ctx, userID, key)
	if err != nil && err != ErrNotFound {
		return "", fmt.Errorf("oauth: storage retrieve failed: %w", err)
	}

	if tok.usable(time.Now()) {
		return "Bearer " + tok.AccessToken, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, rerr := r.refresher.Refresh(ctx, cfg.AuthServer, tok)
		if rerr == nil {
			if serr := r.storage.Store(ctx, userID, key, refreshed); serr != nil {
				return "", fmt.Errorf("oauth: failed to persist refreshed token: %w", serr)
			}
			return "Bearer " + refreshed.AccessToken, nil
		}
		// Refresh failed: drop the stale token and fall through to a
		// challenge, per spec §4.7.2 step 3.
		_ = r.storage.Delete(ctx, userID, key)
	}

	return "", &AuthRequired{
		ServerName: cfg.ServerName,
		AuthServer: cfg.AuthServer,
		Scopes:     cfg.Scopes,
	}
}
