package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMount() MountConfig {
	return MountConfig{Inline: &AgentFile{
		APIVersion: "v1",
		Name:       "support",
		Version:    "1.0.0",
		Spec:       AgentGroup{Agent: AgentConfig{Name: "support", Model: "gpt-4o", MaxRounds: 5}},
	}}
}

func TestServerConfig_SetDefaults(t *testing.T) {
	c := &ServerConfig{Mounts: []MountConfig{validMount()}}
	c.SetDefaults()

	assert.Equal(t, ":8080", c.Address)
	assert.Equal(t, "memory", c.Persistence.Backend)
	assert.Equal(t, "info", c.Logger.Level)
}

func TestServerConfig_Validate(t *testing.T) {
	t.Run("requires at least one mount", func(t *testing.T) {
		c := &ServerConfig{Address: ":8080"}
		c.SetDefaults()
		err := c.Validate()
		assert.Error(t, err)
	})

	t.Run("mount needs file or inline, not both", func(t *testing.T) {
		c := &ServerConfig{Address: ":8080", Mounts: []MountConfig{{}}}
		assert.Error(t, c.Validate())

		m := validMount()
		m.File = "agent.yaml"
		c.Mounts = []MountConfig{m}
		assert.Error(t, c.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		c := &ServerConfig{Mounts: []MountConfig{validMount()}}
		c.SetDefaults()
		require.NoError(t, c.Validate())
	})

	t.Run("invalid oauth server rejected", func(t *testing.T) {
		c := &ServerConfig{
			Mounts:       []MountConfig{validMount()},
			OAuthServers: map[string]OAuthServerConfig{"arcade": {}},
		}
		c.SetDefaults()
		assert.Error(t, c.Validate())
	})
}
