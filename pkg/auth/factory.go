package auth

import (
	"context"
	"fmt"
)

// Mode selects an Authorizer implementation by config, per spec §4.7.1
// ("Factory selects the implementation by config").
type Mode string

const (
	ModeJWT   Mode = "jwt"
	ModeDummy Mode = "dummy"
)

// Config is the subset of agent configuration governing platform auth.
type Config struct {
	Mode     Mode
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewFromConfig builds the configured Authorizer.
func NewFromConfig(ctx context.Context, cfg Config) (Authorizer, error) {
	switch cfg.Mode {
	case "", ModeJWT:
		if cfg.JWKSURL == "" {
			return nil, fmt.Errorf("auth: jwt mode requires jwks_url")
		}
		return NewJWTAuthorizer(ctx, JWTAuthorizerConfig{
			JWKSURL:  cfg.JWKSURL,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
		})
	case ModeDummy:
		return DummyAuthorizer{}, nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Mode)
	}
}
