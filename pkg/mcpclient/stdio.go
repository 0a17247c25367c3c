// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcadeflow/agentserver/pkg/catalog"
)

const clientName = "agentserver"
const clientVersion = "0.1.0"

// stdioConn is the ephemeral stdio transport, grounded on the teacher's
// connectStdio: spawn the subprocess, initialize, and guarantee the
// subprocess is killed on every exit path via Close.
type stdioConn struct {
	client *client.Client
}

func dialStdio(ctx context.Context, cfg ServerConfig) (connection, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, convertEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: create stdio client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcpclient: start stdio client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	initReq.Params.ProtocolVersion = cfg.protocolVersion()

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcpclient: initialize stdio client: %w", err)
	}

	return &stdioConn{client: mcpClient}, nil
}

func (c *stdioConn) ListTools(ctx context.Context) ([]DiscoveredTool, error) {
	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list_tools: %w", err)
	}

	tools := make([]DiscoveredTool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		tools = append(tools, DiscoveredTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertSchema(t.InputSchema),
			Annotations: extractAnnotations(t),
		})
	}
	return tools, nil
}

func (c *stdioConn) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: call_tool: %w", err)
	}
	return parseCallToolResult(resp), nil
}

func (c *stdioConn) Close() error {
	return c.client.Close()
}

func parseCallToolResult(resp *mcp.CallToolResult) *CallResult {
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return &CallResult{IsError: resp.IsError, Text: joinTexts(texts)}
}

// extractAnnotations round-trips the tool through JSON to pull the
// "annotations" object out regardless of the SDK's exact Go field shape,
// mirroring convertSchema's marshal/unmarshal normalization in common.go. The
// teacher's own stdio path never reads annotations at all; this fills
// that gap so governance derivation (spec §4.6) has something to read
// from stdio-discovered tools too.
func extractAnnotations(t mcp.Tool) catalog.Annotations {
	data, err := json.Marshal(t)
	if err != nil {
		return catalog.Annotations{}
	}
	var wire struct {
		Annotations struct {
			ReadOnlyHint    bool `json:"readOnlyHint"`
			DestructiveHint bool `json:"destructiveHint"`
		} `json:"annotations"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return catalog.Annotations{}
	}
	return catalog.Annotations{
		ReadOnlyHint:    wire.Annotations.ReadOnlyHint,
		DestructiveHint: wire.Annotations.DestructiveHint,
	}
}

func convertEnv(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
