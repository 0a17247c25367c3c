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

	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
)

// AgentFile is the on-disk shape of one agent's configuration file:
//
//	apiVersion: v1
//	name: support-bot
//	version: 1.0.0
//	spec:
//	  agent:
//	    model: gpt-4o
//	    system_prompt: "You are a helpful assistant."
//	    mcp_servers: [...]
type AgentFile struct {
	APIVersion string     `yaml:"apiVersion" mapstructure:"apiVersion"`
	Name       string     `yaml:"name" mapstructure:"name"`
	Version    string     `yaml:"version" mapstructure:"version"`
	Spec       AgentGroup `yaml:"spec" mapstructure:"spec"`
}

// AgentGroup wraps the single agent block a file carries. Only one agent
// per file, and that agent never orchestrates sub-agents: multi-agent
// workflows are out of scope.
type AgentGroup struct {
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`
}

// PluginRef names one native (in-process) plugin an agent's kernel should
// hold. Plugin implementations themselves are out of scope here: a
// concrete Go constructor for each name is registered by the composition
// root. Params is a pass-through bag for whatever that constructor needs
// (e.g. a command allowlist), since config has no way to know a native
// plugin's shape in advance.
type PluginRef struct {
	Name       string              `yaml:"name" mapstructure:"name"`
	Governance *GovernanceOverride `yaml:"governance,omitempty" mapstructure:"governance"`
	Params     map[string]any      `yaml:"params,omitempty" mapstructure:"params"`
}

// AgentConfig is one agent's declarative configuration: its model, its
// native plugins, and the MCP servers its kernel federates tools from.
// Mirrors a literal agent configuration file shape.
type AgentConfig struct {
	Name         string            `yaml:"name" mapstructure:"name"`
	Model        string            `yaml:"model" mapstructure:"model"`
	APIKey       string            `yaml:"api_key,omitempty" mapstructure:"api_key"`
	SystemPrompt string            `yaml:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Temperature  *float64          `yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxRounds    int               `yaml:"max_rounds,omitempty" mapstructure:"max_rounds"`
	Plugins      []PluginRef       `yaml:"plugins,omitempty" mapstructure:"plugins"`
	MCPServers   []MCPServerConfig `yaml:"mcp_servers,omitempty" mapstructure:"mcp_servers"`

	// MountPath overrides the default "/{Name}/{Version}" HTTP mount
	// (mount path is configurable per agent).
	MountPath string `yaml:"mount_path,omitempty" mapstructure:"mount_path"`
}

// SetDefaults applies default values to an AgentConfig.
func (c *AgentConfig) SetDefaults() {
	if c.MaxRounds == 0 {
		c.MaxRounds = 10
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	for i := range c.MCPServers {
		c.MCPServers[i].SetDefaults()
	}
}

// Validate checks the AgentConfig for structural errors.
func (c *AgentConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent.name is required")
	}
	if c.Model == "" {
		return fmt.Errorf("agent.model is required")
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be positive")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("agent.temperature must be between 0 and 2")
	}
	seen := make(map[string]bool, len(c.MCPServers))
	for i, srv := range c.MCPServers {
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("agent.mcp_servers[%d]: %w", i, err)
		}
		if seen[srv.Name] {
			return fmt.Errorf("agent.mcp_servers[%d]: duplicate server name %q", i, srv.Name)
		}
		seen[srv.Name] = true
	}
	for i, p := range c.Plugins {
		if p.Name == "" {
			return fmt.Errorf("agent.plugins[%d]: name is required", i)
		}
	}
	return nil
}

// MCPRegistryConfigs converts every configured MCP server into the shape
// mcpregistry.Registry consumes.
func (c *AgentConfig) MCPRegistryConfigs() []mcpregistry.ServerConfig {
	out := make([]mcpregistry.ServerConfig, len(c.MCPServers))
	for i, srv := range c.MCPServers {
		out[i] = srv.ToRegistryConfig()
	}
	return out
}

// Resolve returns the HTTP mount path for this agent given its parent
// file's name/version, honoring an explicit override.
func (f *AgentFile) Resolve() string {
	if f.Spec.Agent.MountPath != "" {
		return f.Spec.Agent.MountPath
	}
	return "/" + f.Name + "/" + f.Version
}
