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

	"github.com/arcadeflow/agentserver/pkg/observability"
)

// MountConfig locates one agent's configuration file and, once loaded,
// the HTTP/gRPC mount it's served under.
type MountConfig struct {
	// File is a path to an AgentFile, loaded through the same Loader
	// backend (file/consul/etcd/zookeeper) as this ServerConfig itself.
	File string `yaml:"file,omitempty" mapstructure:"file"`

	// Inline embeds the agent file directly, for single-file deployments.
	Inline *AgentFile `yaml:"inline,omitempty" mapstructure:"inline"`
}

// ServerConfig is the process-wide composition configuration
// cmd/agentserver loads: listen addresses, authentication, persistence,
// observability, the named OAuth authorization servers MCP servers may
// reference, and the set of agent mounts to serve.
type ServerConfig struct {
	Address     string `yaml:"address,omitempty" mapstructure:"address"`
	GRPCAddress string `yaml:"grpc_address,omitempty" mapstructure:"grpc_address"`

	Auth          AuthConfig             `yaml:"auth,omitempty" mapstructure:"auth"`
	Persistence   PersistenceConfig      `yaml:"persistence,omitempty" mapstructure:"persistence"`
	Logger        LoggerConfig           `yaml:"logger,omitempty" mapstructure:"logger"`
	Observability observability.Config   `yaml:"observability,omitempty" mapstructure:"observability"`
	OAuthServers  map[string]OAuthServerConfig `yaml:"oauth_servers,omitempty" mapstructure:"oauth_servers"`

	Mounts []MountConfig `yaml:"mounts" mapstructure:"mounts"`
}

// SetDefaults applies default values to a ServerConfig and everything it
// embeds.
func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	c.Auth.SetDefaults()
	c.Persistence.SetDefaults()
	c.Logger.SetDefaults()
	for name, s := range c.OAuthServers {
		if s.RedirectURL == "" {
			s.RedirectURL = "http://" + c.Address + "/auth/arcade/verify"
			c.OAuthServers[name] = s
		}
	}
}

// Validate checks the ServerConfig for structural errors.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Persistence.Validate(); err != nil {
		return err
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	for name, s := range c.OAuthServers {
		if err := s.Validate(name); err != nil {
			return err
		}
	}
	if len(c.Mounts) == 0 {
		return fmt.Errorf("server.mounts: at least one agent mount is required")
	}
	for i, m := range c.Mounts {
		if m.File == "" && m.Inline == nil {
			return fmt.Errorf("server.mounts[%d]: one of file or inline is required", i)
		}
		if m.File != "" && m.Inline != nil {
			return fmt.Errorf("server.mounts[%d]: file and inline are mutually exclusive", i)
		}
	}
	return nil
}
