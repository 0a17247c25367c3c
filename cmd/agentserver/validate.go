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

package main

import (
	"fmt"
	"os"

	"github.com/arcadeflow/agentserver/pkg/config"
	"gopkg.in/yaml.v3"
)

// ValidateCmd validates a server configuration file (and, transitively,
// every agent file it mounts) without starting the server.
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Server configuration file path." placeholder:"PATH"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.LoadServerConfig(config.LoaderOptions{Type: config.ConfigTypeFile, Path: c.Config})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid: %s\n", c.Config, err)
		return fmt.Errorf("configuration validation failed")
	}

	for _, m := range cfg.Mounts {
		if m.File == "" {
			continue
		}
		if _, err := config.LoadAgentFile(config.LoaderOptions{Type: config.ConfigTypeFile, Path: m.File}); err != nil {
			fmt.Fprintf(os.Stderr, "%s: invalid: %s\n", m.File, err)
			return fmt.Errorf("configuration validation failed")
		}
	}

	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as YAML: %w", err)
		}
		return nil
	}

	fmt.Printf("%s: valid\n", c.Config)
	return nil
}
