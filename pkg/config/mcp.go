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

	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/mcpclient"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
)

// GovernanceOverride mirrors catalog.GovernanceOverride for YAML
// unmarshaling (pointer fields so "unset" and "false"/"" are
// distinguishable once decoded).
type GovernanceOverride struct {
	RequiresHITL    *bool              `yaml:"requires_hitl,omitempty" mapstructure:"requires_hitl"`
	Cost            *catalog.Cost      `yaml:"cost,omitempty" mapstructure:"cost"`
	DataSensitivity *catalog.Sensitivity `yaml:"data_sensitivity,omitempty" mapstructure:"data_sensitivity"`
}

func (o *GovernanceOverride) toCatalog() *catalog.GovernanceOverride {
	if o == nil {
		return nil
	}
	return &catalog.GovernanceOverride{
		RequiresHITL:    o.RequiresHITL,
		Cost:            o.Cost,
		DataSensitivity: o.DataSensitivity,
	}
}

// MCPServerConfig is the literal McpServerConfig shape: one
// MCP server an agent federates tools from, the trust level its tools
// are derived under, and per-tool governance overrides.
type MCPServerConfig struct {
	Name           string            `yaml:"name" mapstructure:"name"`
	Transport      string            `yaml:"transport" mapstructure:"transport"` // stdio|http
	URL            string            `yaml:"url,omitempty" mapstructure:"url"`
	Command        string            `yaml:"command,omitempty" mapstructure:"command"`
	Args           []string          `yaml:"args,omitempty" mapstructure:"args"`
	Env            map[string]string `yaml:"env,omitempty" mapstructure:"env"`
	Headers        map[string]string `yaml:"headers,omitempty" mapstructure:"headers"`
	Timeout        time.Duration     `yaml:"timeout,omitempty" mapstructure:"timeout"`
	SSEReadTimeout time.Duration     `yaml:"sse_read_timeout,omitempty" mapstructure:"sse_read_timeout"`

	AuthServer string   `yaml:"auth_server,omitempty" mapstructure:"auth_server"`
	Scopes     []string `yaml:"scopes,omitempty" mapstructure:"scopes"`
	TrustLevel string   `yaml:"trust_level" mapstructure:"trust_level"` // trusted|sandboxed|untrusted

	ToolGovernanceOverrides map[string]GovernanceOverride `yaml:"tool_governance_overrides,omitempty" mapstructure:"tool_governance_overrides"`

	UserIDHeader string `yaml:"user_id_header,omitempty" mapstructure:"user_id_header"`
	UserIDSource string `yaml:"user_id_source,omitempty" mapstructure:"user_id_source"` // auth|env

	VerifySSL bool `yaml:"verify_ssl" mapstructure:"verify_ssl"`
}

// SetDefaults applies default values to an MCPServerConfig.
func (c *MCPServerConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.SSEReadTimeout == 0 {
		c.SSEReadTimeout = 5 * time.Minute
	}
	if c.TrustLevel == "" {
		c.TrustLevel = string(catalog.TrustUntrusted)
	}
	if c.UserIDSource == "" {
		c.UserIDSource = string(mcpregistry.UserIDFromAuth)
	}
}

// Validate checks the MCPServerConfig for structural errors.
func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp server name is required")
	}
	switch mcpclient.Transport(c.Transport) {
	case mcpclient.TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %q: command is required for stdio transport", c.Name)
		}
	case mcpclient.TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %q: url is required for http transport", c.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: invalid transport %q, must be stdio or http", c.Name, c.Transport)
	}
	switch catalog.TrustLevel(c.TrustLevel) {
	case catalog.TrustTrusted, catalog.TrustSandboxed, catalog.TrustUntrusted:
	default:
		return fmt.Errorf("mcp server %q: invalid trust_level %q", c.Name, c.TrustLevel)
	}
	switch mcpregistry.UserIDSource(c.UserIDSource) {
	case mcpregistry.UserIDFromAuth, mcpregistry.UserIDFromEnv, "":
	default:
		return fmt.Errorf("mcp server %q: invalid user_id_source %q", c.Name, c.UserIDSource)
	}
	return nil
}

// ToRegistryConfig converts the declarative MCPServerConfig into the
// mcpregistry.ServerConfig the federation registry consumes.
func (c *MCPServerConfig) ToRegistryConfig() mcpregistry.ServerConfig {
	overrides := make(map[string]catalog.GovernanceOverride, len(c.ToolGovernanceOverrides))
	for tool, o := range c.ToolGovernanceOverrides {
		ov := o
		overrides[tool] = *ov.toCatalog()
	}
	return mcpregistry.ServerConfig{
		Name:                    c.Name,
		Transport:               mcpclient.Transport(c.Transport),
		URL:                     c.URL,
		Command:                 c.Command,
		Args:                    c.Args,
		Env:                     c.Env,
		Headers:                 c.Headers,
		Timeout:                 c.Timeout,
		SSEReadTimeout:          c.SSEReadTimeout,
		AuthServer:              c.AuthServer,
		Scopes:                  c.Scopes,
		TrustLevel:              catalog.TrustLevel(c.TrustLevel),
		ToolGovernanceOverrides: overrides,
		UserIDHeader:            c.UserIDHeader,
		UserIDSource:            mcpregistry.UserIDSource(c.UserIDSource),
		VerifySSL:               c.VerifySSL,
	}
}
