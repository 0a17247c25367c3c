package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAgentYAML = `
apiVersion: v1
name: support-bot
version: 1.0.0
spec:
  agent:
    name: support-bot
    model: ${AGENT_MODEL:-gpt-4o}
    system_prompt: "You are a helpful assistant."
    max_rounds: 5
    mcp_servers:
      - name: arcade
        transport: http
        url: "https://mcp.example.com"
        trust_level: trusted
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgentFile_FileBackend(t *testing.T) {
	path := writeTempFile(t, "agent.yaml", sampleAgentYAML)

	f, err := LoadAgentFile(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)

	assert.Equal(t, "support-bot", f.Name)
	assert.Equal(t, "gpt-4o", f.Spec.Agent.Model)
	require.Len(t, f.Spec.Agent.MCPServers, 1)
	assert.Equal(t, "arcade", f.Spec.Agent.MCPServers[0].Name)
}

func TestLoadAgentFile_EnvVarOverride(t *testing.T) {
	t.Setenv("AGENT_MODEL", "claude-3")
	path := writeTempFile(t, "agent.yaml", sampleAgentYAML)

	f, err := LoadAgentFile(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, "claude-3", f.Spec.Agent.Model)
}

func TestNewLoader_UnknownType(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Type: "bogus", Path: "x"})
	assert.Error(t, err)
}

func TestNewLoader_MissingPath(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Type: ConfigTypeFile})
	assert.Error(t, err)
}

func TestParseConfigType(t *testing.T) {
	ct, err := ParseConfigType("")
	require.NoError(t, err)
	assert.Equal(t, ConfigTypeFile, ct)

	ct, err = ParseConfigType("etcd")
	require.NoError(t, err)
	assert.Equal(t, ConfigTypeEtcd, ct)

	_, err = ParseConfigType("bogus")
	assert.Error(t, err)
}

func TestLoadServerConfig_FileBackend(t *testing.T) {
	const serverYAML = `
address: ":9090"
mounts:
  - inline:
      apiVersion: v1
      name: support-bot
      version: 1.0.0
      spec:
        agent:
          name: support-bot
          model: gpt-4o
          max_rounds: 3
`
	path := writeTempFile(t, "server.yaml", serverYAML)

	c, err := LoadServerConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Address)
	require.Len(t, c.Mounts, 1)
	require.NotNil(t, c.Mounts[0].Inline)
	assert.Equal(t, "support-bot", c.Mounts[0].Inline.Name)
}
