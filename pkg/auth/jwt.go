package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTAuthorizer verifies tokens against a JWKS endpoint, grounded on the
// teacher's pkg/auth.JWTValidator: JWKS fetched once and auto-refreshed by
// the jwx cache's own single-flight-per-URL refresh, signature + exp + iss
// + aud validated by jwt.Parse, then the spec's claim-precedence chain
// applied to pick user_id.
type JWTAuthorizer struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

var _ Authorizer = (*JWTAuthorizer)(nil)

// JWTAuthorizerConfig configures NewJWTAuthorizer.
type JWTAuthorizerConfig struct {
	JWKSURL         string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration // default 15 minutes, matching the teacher
}

// NewJWTAuthorizer builds a JWTAuthorizer and performs an initial JWKS
// fetch to fail fast on misconfiguration.
func NewJWTAuthorizer(ctx context.Context, cfg JWTAuthorizerConfig) (*JWTAuthorizer, error) {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("auth: failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("auth: failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &JWTAuthorizer{
		jwksURL:  cfg.JWKSURL,
		cache:    cache,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

func (a *JWTAuthorizer) AuthorizeRequest(ctx context.Context, authHeader string) (string, error) {
	tokenString, ok := bearerToken(authHeader)
	if !ok {
		return "", ErrNotAuthenticated
	}

	keyset, err := a.cache.Get(ctx, a.jwksURL)
	if err != nil {
		return "", fmt.Errorf("%w: jwks unavailable: %v", ErrNotAuthenticated, err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	userID, err := userIDFromClaims(func(name string) (string, bool) {
		if name == "sub" {
			if token.Subject() != "" {
				return token.Subject(), true
			}
			return "", false
		}
		v, ok := token.Get(name)
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	return userID, nil
}

// Close is a no-op: the jwx cache's refresh goroutine stops when the
// context passed to NewJWTAuthorizer is canceled, matching the teacher.
func (a *JWTAuthorizer) Close() {}
