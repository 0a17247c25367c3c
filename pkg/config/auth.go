// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"

	"github.com/arcadeflow/agentserver/pkg/auth"
)

// AuthConfig configures JWT-based authentication for inbound requests.
// Authentication is disabled by default; when enabled, the composition
// root wires an auth.JWTAuthorizer instead of auth.DummyAuthorizer into
// every agent's Handler.
//
// Example configuration:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "agentserver-api"
//
// The JWT token should be passed in the Authorization header:
//
//	Authorization: Bearer <token>
type AuthConfig struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`

	JWKSURL  string `yaml:"jwks_url,omitempty" mapstructure:"jwks_url"`
	Issuer   string `yaml:"issuer,omitempty" mapstructure:"issuer"`
	Audience string `yaml:"audience,omitempty" mapstructure:"audience"`

	// RefreshInterval is how often to refresh the JWKS. Default: 15m.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" mapstructure:"refresh_interval"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth is enabled")
	}
	if c.Issuer == "" {
		return fmt.Errorf("auth.issuer is required when auth is enabled")
	}
	if c.Audience == "" {
		return fmt.Errorf("auth.audience is required when auth is enabled")
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("auth.refresh_interval must be at least 1 minute")
	}
	return nil
}

// IsEnabled returns true if authentication is configured and enabled.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled && c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}

// JWTAuthorizerConfig converts AuthConfig into the
// auth.JWTAuthorizerConfig pkg/auth.NewJWTAuthorizer consumes.
func (c *AuthConfig) JWTAuthorizerConfig() auth.JWTAuthorizerConfig {
	return auth.JWTAuthorizerConfig{
		JWKSURL:         c.JWKSURL,
		Issuer:          c.Issuer,
		Audience:        c.Audience,
		RefreshInterval: c.RefreshInterval,
	}
}
