package mcpclient

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertSchema_RoundTripsToMap(t *testing.T) {
	m := convertSchema(mcp.ToolInputSchema{})
	require.NotNil(t, m)
}

func TestJoinTexts_CommonPackage(t *testing.T) {
	assert.Equal(t, "", joinTexts(nil))
	assert.Equal(t, "only", joinTexts([]string{"only"}))
	assert.Equal(t, "first\nsecond", joinTexts([]string{"first", "second"}))
}
