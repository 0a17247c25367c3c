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

	"github.com/arcadeflow/agentserver/pkg/oauth"
)

// OAuthServerConfig is one named authorization server's static OAuth2
// client registration, referenced by an MCP server's auth_server field.
type OAuthServerConfig struct {
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string `yaml:"client_secret,omitempty" mapstructure:"client_secret"`
	AuthURL       string `yaml:"auth_url" mapstructure:"auth_url"`
	TokenURL      string `yaml:"token_url" mapstructure:"token_url"`
	RedirectURL   string `yaml:"redirect_url" mapstructure:"redirect_url"`
	ResourceAware bool   `yaml:"resource_aware,omitempty" mapstructure:"resource_aware"`
}

// Validate checks the OAuthServerConfig for structural errors.
func (c *OAuthServerConfig) Validate(name string) error {
	if c.ClientID == "" {
		return fmt.Errorf("oauth_servers.%s.client_id is required", name)
	}
	if c.AuthURL == "" {
		return fmt.Errorf("oauth_servers.%s.auth_url is required", name)
	}
	if c.TokenURL == "" {
		return fmt.Errorf("oauth_servers.%s.token_url is required", name)
	}
	return nil
}

// BuildBroker assembles the two maps oauth.NewBroker needs from a set of
// named OAuthServerConfig entries.
func BuildBroker(servers map[string]OAuthServerConfig) *oauth.Broker {
	creds := make(map[string]oauth.ServerCredentials, len(servers))
	resourceAware := make(map[string]bool, len(servers))
	for name, s := range servers {
		creds[name] = oauth.ServerCredentials{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			AuthURL:      s.AuthURL,
			TokenURL:     s.TokenURL,
			RedirectURL:  s.RedirectURL,
		}
		resourceAware[name] = s.ResourceAware
	}
	return oauth.NewBroker(creds, resourceAware)
}
