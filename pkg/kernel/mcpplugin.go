package kernel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arcadeflow/agentserver/pkg/mcpclient"
	"github.com/arcadeflow/agentserver/pkg/session"
)

// HeaderResolver resolves the auth headers for one MCP call, fresh each
// time (spec §4.4 invocation semantics step 1: "the session-start token
// may have been refreshed or invalidated"). mcpregistry supplies the
// closure bound to one (user_id, server) pair at plugin-instantiation
// time; MCPPlugin never reaches back into the registry itself.
type HeaderResolver func(ctx context.Context) (map[string]string, error)

// mcpFunction pairs a discovered tool's metadata with the raw tool name
// the wire protocol expects (the plugin's FunctionName is qualified
// with the server, per spec §4.3 step 2c's tool_id convention; the wire
// call_tool name is not).
type mcpFunction struct {
	rawName     string
	description string
	parameters  map[string]any
}

// MCPPlugin is the MCP-backed PluginInstance. Per spec §9's "owned
// values addressed by id": it carries a value copy of the server
// config and discovered tool metadata, plus user_id/session_id, rather
// than a pointer back to the MCP registry that discovered them.
type MCPPlugin struct {
	serverConfig   mcpclient.ServerConfig
	functions      map[string]mcpFunction
	userID         string
	sessionID      string
	resolveHeaders HeaderResolver
}

// NewMCPPlugin builds an MCPPlugin from one server's discovered tools.
// functionName for each tool is "{serverName}_{tool.Name}", matching
// the plugin_id/tool_id split spec §4.3 step 2c establishes
// ("mcp_{server}-{server}_{tool_name}" => plugin_name "mcp_{server}",
// function_name "{server}_{tool_name}").
func NewMCPPlugin(serverName string, serverConfig mcpclient.ServerConfig, tools []session.ToolMetadata, userID, sessionID string, resolveHeaders HeaderResolver) *MCPPlugin {
	functions := make(map[string]mcpFunction, len(tools))
	for _, t := range tools {
		var params map[string]any
		_ = json.Unmarshal(t.InputSchema, &params)

		functions[serverName+"_"+t.Name] = mcpFunction{
			rawName:     t.Name,
			description: t.Description,
			parameters:  params,
		}
	}

	return &MCPPlugin{
		serverConfig:   serverConfig,
		functions:      functions,
		userID:         userID,
		sessionID:      sessionID,
		resolveHeaders: resolveHeaders,
	}
}

func (p *MCPPlugin) Signatures() []FunctionSignature {
	out := make([]FunctionSignature, 0, len(p.functions))
	for name, f := range p.functions {
		out = append(out, FunctionSignature{
			FunctionName: name,
			Description:  f.description,
			Parameters:   f.parameters,
		})
	}
	return out
}

// Invoke resolves headers for this call, opens an ephemeral connection
// via pkg/mcpclient, and textifies the result (spec §4.4 invocation
// semantics). A header-resolution failure (typically an AuthRequired
// raised by pkg/oauth) propagates as an error rather than an IsError
// Result — the agent loop cannot recover from it by retrying, the
// caller must re-authorize.
func (p *MCPPlugin) Invoke(ctx context.Context, functionName string, args map[string]any) (Result, error) {
	f, ok := p.functions[functionName]
	if !ok {
		return Result{}, fmt.Errorf("kernel: mcp plugin %q has no function %q", p.serverConfig.Name, functionName)
	}

	headers, err := p.resolveHeaders(ctx)
	if err != nil {
		return Result{}, err
	}

	res, err := mcpclient.Call(ctx, p.serverConfig, headers, f.rawName, args)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: res.Text, IsError: res.IsError}, nil
}
