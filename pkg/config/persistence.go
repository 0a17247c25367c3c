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

import "fmt"

// PersistenceConfig selects the backend task.Service and oauth.Storage
// share ("specific persistence backends are pluggable"), and
// carries the connection parameters the composition root needs to open
// the chosen backend once, before handing it to both factories.
type PersistenceConfig struct {
	// Backend is "memory" (default), "postgres", or "redis".
	Backend string `yaml:"backend,omitempty" mapstructure:"backend"`

	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
	Redis    RedisConfig    `yaml:"redis,omitempty" mapstructure:"redis"`
}

// PostgresConfig configures the database/sql + pgx/v5 connection used
// when PersistenceConfig.Backend is "postgres".
type PostgresConfig struct {
	DSN             string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
}

// RedisConfig configures the go-redis/v9 client used when
// PersistenceConfig.Backend is "redis".
type RedisConfig struct {
	Address  string `yaml:"address,omitempty" mapstructure:"address"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
}

// SetDefaults applies default values to a PersistenceConfig.
func (c *PersistenceConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "postgres" && c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
}

// Validate checks the PersistenceConfig for structural errors.
func (c *PersistenceConfig) Validate() error {
	switch c.Backend {
	case "", "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("persistence.postgres.dsn is required when backend is postgres")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("persistence.redis.address is required when backend is redis")
		}
	default:
		return fmt.Errorf("invalid persistence.backend %q, must be memory, postgres, or redis", c.Backend)
	}
	return nil
}
