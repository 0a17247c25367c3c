package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfig_SetDefaults(t *testing.T) {
	c := &AgentConfig{Name: "support", Model: "gpt-4o"}
	c.SetDefaults()

	assert.Equal(t, 10, c.MaxRounds)
	require.NotNil(t, c.Temperature)
	assert.Equal(t, 0.7, *c.Temperature)
}

func TestAgentConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AgentConfig
		wantErr bool
	}{
		{"missing name", AgentConfig{Model: "gpt-4o", MaxRounds: 1}, true},
		{"missing model", AgentConfig{Name: "a", MaxRounds: 1}, true},
		{"zero max rounds", AgentConfig{Name: "a", Model: "gpt-4o"}, true},
		{"valid", AgentConfig{Name: "a", Model: "gpt-4o", MaxRounds: 5}, false},
		{
			"duplicate mcp server names",
			AgentConfig{
				Name: "a", Model: "gpt-4o", MaxRounds: 5,
				MCPServers: []MCPServerConfig{
					{Name: "s1", Transport: "http", URL: "http://x", TrustLevel: "trusted"},
					{Name: "s1", Transport: "http", URL: "http://x", TrustLevel: "trusted"},
				},
			},
			true,
		},
		{
			"plugin missing name",
			AgentConfig{Name: "a", Model: "gpt-4o", MaxRounds: 5, Plugins: []PluginRef{{}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAgentFile_Resolve(t *testing.T) {
	f := &AgentFile{Name: "support", Version: "1.0.0"}
	assert.Equal(t, "/support/1.0.0", f.Resolve())

	f.Spec.Agent.MountPath = "/custom"
	assert.Equal(t, "/custom", f.Resolve())
}
