// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcpclient speaks the MCP JSON-RPC handshake (spec §4.4) over an
// ephemeral connection: one is opened per discovery pass or per tool call
// and closed on every exit path, never pooled or cached across requests.
//
// Transport Support:
//   - stdio: subprocess via mark3labs/mcp-go, mirroring the teacher's
//     mcptoolset.connectStdio.
//   - http: streamable-HTTP with SSE fallback, via the teacher's own
//     httpclient with JSON-RPC framing and an mcp-session-id header.
package mcpclient

import (
	"context"
	"time"

	"github.com/arcadeflow/agentserver/pkg/catalog"
)

// Transport selects how a ServerConfig's connection is established.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// ServerConfig is the subset of McpServerConfig (spec §4.2) this package
// needs to open a connection. mcpregistry owns the full declarative shape
// (auth_server, scopes, trust_level, governance overrides); this package
// only sees what it takes to reach the wire.
type ServerConfig struct {
	Name            string
	Transport       Transport
	URL             string
	Command         string
	Args            []string
	Env             map[string]string
	Timeout         time.Duration
	SSEReadTimeout  time.Duration
	// VerifySSL enables TLS certificate verification for the http
	// transport. pkg/config does not default it: a McpServerConfig
	// without verify_ssl loads with VerifySSL false, and the http
	// transport then does not verify the server's certificate.
	VerifySSL       bool
	ProtocolVersion string // optional, e.g. "2025-06-18"
}

func (c ServerConfig) protocolVersion() string {
	if c.ProtocolVersion != "" {
		return c.ProtocolVersion
	}
	return "2024-11-05"
}

func (c ServerConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

func (c ServerConfig) sseReadTimeout() time.Duration {
	if c.SSEReadTimeout > 0 {
		return c.SSEReadTimeout
	}
	return 5 * time.Minute
}

// DiscoveredTool is one entry of a list_tools response (spec §4.4
// protocol), kept in a transport-agnostic shape for pkg/session to cache.
type DiscoveredTool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Annotations catalog.Annotations
}

// CallResult is the outcome of a call_tool invocation (spec §4.4
// protocol: `{isError:bool, content:[{text|...}]}`), textified per the
// teacher's parseToolResponse/callHTTP convention.
type CallResult struct {
	IsError bool
	Text    string
}

// Discover opens an ephemeral connection, performs initialize + list_tools,
// and closes the connection before returning — regardless of outcome.
// headers carries whatever the caller resolved for this request (spec
// §4.7 bearer token, static config headers, user-id header injection);
// stdio ignores them since there is no wire to attach them to.
func Discover(ctx context.Context, cfg ServerConfig, headers map[string]string) ([]DiscoveredTool, error) {
	conn, err := dial(ctx, cfg, headers)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.ListTools(ctx)
}

// Call opens an ephemeral connection, performs initialize + call_tool, and
// closes the connection before returning (spec §4.4 invocation semantics
// steps 2-3). headers must be resolved fresh by the caller for this
// specific user at call time (step 1) — this package never caches or
// refreshes them.
func Call(ctx context.Context, cfg ServerConfig, headers map[string]string, toolName string, args map[string]any) (*CallResult, error) {
	conn, err := dial(ctx, cfg, headers)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.CallTool(ctx, toolName, args)
}

// connection is the minimal interface both transports implement, so
// Discover/Call never branch on transport themselves.
type connection interface {
	ListTools(ctx context.Context) ([]DiscoveredTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	Close() error
}

func dial(ctx context.Context, cfg ServerConfig, headers map[string]string) (connection, error) {
	if cfg.Transport == TransportStdio || cfg.Command != "" {
		return dialStdio(ctx, cfg)
	}
	return dialHTTP(ctx, cfg, headers)
}
