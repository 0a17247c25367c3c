// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/httpclient"
)

// httpConn is the ephemeral streamable-HTTP/SSE transport, grounded on the
// teacher's connectHTTP/makeHTTPRequest/readSSEResponse. Unlike the
// teacher's Toolset, which lazily connects once and caches the
// connection, this dials fresh per Discover/Call and is discarded on
// Close — there is nothing to keep warm between ephemeral sessions.
type httpConn struct {
	cfg     ServerConfig
	headers map[string]string
	client  *httpclient.Client

	sessionMu sync.RWMutex
	sessionID string
}

func dialHTTP(ctx context.Context, cfg ServerConfig, headers map[string]string) (connection, error) {
	var transport http.RoundTripper
	if !cfg.VerifySSL {
		if tlsTransport, err := httpclient.ConfigureTLS(&httpclient.TLSConfig{InsecureSkipVerify: true}); err == nil {
			transport = tlsTransport
		}
	}

	c := &httpConn{
		cfg:     cfg,
		headers: headers,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.timeout()}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(500*time.Millisecond),
		),
	}

	resp, err := c.request(ctx, "initialize", map[string]any{
		"protocolVersion": cfg.protocolVersion(),
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
		"capabilities":    map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: initialize: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcpclient: initialize error: %s", resp.Error.Message)
	}

	return c, nil
}

func (c *httpConn) ListTools(ctx context.Context) ([]DiscoveredTool, error) {
	resp, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list_tools: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcpclient: list_tools error: %s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcpclient: unexpected tools/list result shape")
	}
	rawTools, _ := resultMap["tools"].([]any)

	tools := make([]DiscoveredTool, 0, len(rawTools))
	for _, raw := range rawTools {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		schema, _ := m["inputSchema"].(map[string]any)
		tools = append(tools, DiscoveredTool{
			Name:        name,
			Description: desc,
			InputSchema: schema,
			Annotations: annotationsFromWire(m["annotations"]),
		})
	}
	return tools, nil
}

func (c *httpConn) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	resp, err := c.request(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: call_tool: %w", err)
	}
	if resp.Error != nil {
		return &CallResult{IsError: true, Text: resp.Error.Message}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return &CallResult{Text: fmt.Sprintf("%v", resp.Result)}, nil
	}

	isError, _ := resultMap["isError"].(bool)
	var texts []string
	if content, ok := resultMap["content"].([]any); ok {
		for _, block := range content {
			cm, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := cm["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	return &CallResult{IsError: isError, Text: joinTexts(texts)}, nil
}

// Close releases the underlying HTTP client. There is no server-side
// session to tear down unless the server issued an mcp-session-id, and
// even then MCP's streamable-HTTP transport does not require an explicit
// DELETE to release it — the teacher's own Close treats HTTP the same
// way (no-op beyond dropping the client reference).
func (c *httpConn) Close() error {
	c.client = nil
	return nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// request sends one JSON-RPC call over the ephemeral HTTP connection,
// tracking the mcp-session-id header for streamable-HTTP and falling
// back to SSE parsing when the server responds with an event stream —
// mirrors the teacher's makeHTTPRequest almost line for line.
func (c *httpConn) request(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.sessionMu.RLock()
	sessionID := c.sessionID
	c.sessionMu.RUnlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if newSessionID := resp.Header.Get("mcp-session-id"); newSessionID != "" {
		c.sessionMu.Lock()
		c.sessionID = newSessionID
		c.sessionMu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(responseBody))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(resp, c.cfg.sseReadTimeout())
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out jsonRPCResponse
	if err := json.Unmarshal(responseBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an SSE
// stream, bounded by sse_read_timeout, grounded on the teacher's
// readSSEResponse goroutine+timeout-channel shape.
func readSSEResponse(resp *http.Response, timeout time.Duration) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var data strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}
			text := strings.TrimSpace(string(line))
			if text == "" {
				if data.Len() > 0 {
					var out jsonRPCResponse
					if err := json.Unmarshal([]byte(data.String()), &out); err == nil {
						resultChan <- result{response: &out}
						return
					}
					data.Reset()
				}
				continue
			}
			if strings.HasPrefix(text, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(text, "data:")))
			}
		}

		if data.Len() > 0 {
			var out jsonRPCResponse
			if err := json.Unmarshal([]byte(data.String()), &out); err == nil {
				resultChan <- result{response: &out}
				return
			}
		}
		resultChan <- result{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout reading sse response after %v", timeout)
	}
}

func annotationsFromWire(raw any) catalog.Annotations {
	m, ok := raw.(map[string]any)
	if !ok {
		return catalog.Annotations{}
	}
	readOnly, _ := m["readOnlyHint"].(bool)
	destructive, _ := m["destructiveHint"].(bool)
	return catalog.Annotations{ReadOnlyHint: readOnly, DestructiveHint: destructive}
}
