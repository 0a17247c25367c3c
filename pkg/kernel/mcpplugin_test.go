package kernel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcadeflow/agentserver/pkg/mcpclient"
	"github.com/arcadeflow/agentserver/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Result  any    `json:"result,omitempty"`
}

func newToolMetadata(name, description string) session.ToolMetadata {
	schema, _ := json.Marshal(map[string]any{"type": "object"})
	return session.ToolMetadata{Name: name, Description: description, InputSchema: schema}
}

func TestMCPPlugin_SignaturesUseQualifiedFunctionNames(t *testing.T) {
	plugin := NewMCPPlugin("github", mcpclient.ServerConfig{Name: "github"}, []session.ToolMetadata{
		newToolMetadata("create_issue", "create an issue"),
	}, "alice", "sess-1", func(ctx context.Context) (map[string]string, error) { return nil, nil })

	sigs := plugin.Signatures()
	require.Len(t, sigs, 1)
	assert.Equal(t, "github_create_issue", sigs[0].FunctionName)
	assert.Equal(t, "create an issue", sigs[0].Description)
}

func TestMCPPlugin_InvokeCallsToolOverHTTPWithResolvedHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req jsonRPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{}
		case "tools/call":
			result = map[string]any{"isError": false, "content": []any{map[string]any{"type": "text", "text": "done"}}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
	defer srv.Close()

	plugin := NewMCPPlugin("github", mcpclient.ServerConfig{Name: "github", Transport: mcpclient.TransportHTTP, URL: srv.URL, VerifySSL: true},
		[]session.ToolMetadata{newToolMetadata("close_issue", "close an issue")},
		"alice", "sess-1",
		func(ctx context.Context) (map[string]string, error) {
			return map[string]string{"Authorization": "Bearer resolved-token"}, nil
		},
	)

	res, err := plugin.Invoke(context.Background(), "github_close_issue", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "done", res.Content)
	assert.Equal(t, "Bearer resolved-token", gotAuth)
}

func TestMCPPlugin_InvokeUnknownFunctionErrors(t *testing.T) {
	plugin := NewMCPPlugin("github", mcpclient.ServerConfig{Name: "github"}, nil, "alice", "sess-1",
		func(ctx context.Context) (map[string]string, error) { return nil, nil })

	_, err := plugin.Invoke(context.Background(), "github_missing", nil)
	assert.Error(t, err)
}

func TestMCPPlugin_InvokePropagatesHeaderResolutionError(t *testing.T) {
	plugin := NewMCPPlugin("github", mcpclient.ServerConfig{Name: "github"},
		[]session.ToolMetadata{newToolMetadata("close_issue", "close an issue")},
		"alice", "sess-1",
		func(ctx context.Context) (map[string]string, error) { return nil, assertErr },
	)

	_, err := plugin.Invoke(context.Background(), "github_close_issue", nil)
	assert.ErrorIs(t, err, assertErr)
}
