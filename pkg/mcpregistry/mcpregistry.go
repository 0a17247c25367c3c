// Package mcpregistry implements the per-(user_id, session_id) MCP
// discovery algorithm (spec §4.3): materialize the set of MCP-hosted
// tools a user is authorized to see at session start, so per-request
// agent builds only instantiate plugin objects and never reach across
// the network during construction.
//
// It is composition, not new mechanism: pkg/session holds the result,
// pkg/oauth resolves auth headers, pkg/mcpclient speaks the wire
// protocol, and pkg/catalog is the registry discovered tools land in.
// The wiring pattern is grounded on the teacher's pkg/server.Server,
// which composes several subsystems under one runtime struct rather
// than letting them reach for each other directly.
package mcpregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/mcpclient"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/session"
)

// UserIDSource selects where a server's runtime user-context header
// value comes from (spec §4.3 step 2a).
type UserIDSource string

const (
	UserIDFromAuth UserIDSource = "auth"
	UserIDFromEnv  UserIDSource = "env"
)

// ServerConfig is the declarative shape of one entry in an agent's
// mcp_servers list (spec's McpServerConfig). pkg/config is responsible
// for loading these from YAML; this package only consumes them.
type ServerConfig struct {
	Name           string
	Transport      mcpclient.Transport
	URL            string
	Command        string
	Args           []string
	Env            map[string]string
	Headers        map[string]string
	Timeout        time.Duration
	SSEReadTimeout time.Duration

	AuthServer string
	Scopes     []string
	TrustLevel catalog.TrustLevel

	ToolGovernanceOverrides map[string]catalog.GovernanceOverride

	UserIDHeader string
	UserIDSource UserIDSource

	VerifySSL bool
}

// Registry orchestrates discovery for a process's lifetime.
type Registry struct {
	cache    *session.Cache
	catalog  *catalog.Catalog
	resolver *oauth.Resolver
	locks    keylock.Map[string]
}

// NewRegistry builds a Registry over the given cache, catalog, and
// auth resolver. None may be nil.
func NewRegistry(cache *session.Cache, cat *catalog.Catalog, resolver *oauth.Resolver) *Registry {
	return &Registry{cache: cache, catalog: cat, resolver: resolver}
}

func lockKey(userID, sessionID string) string { return userID + "|" + sessionID }

// DiscoverAndMaterialize runs spec §4.3's discover_and_materialize.
// Returns the AuthRequired challenges collected across servers (empty
// if none), in which case the caller builds an AuthChallengeResponse;
// discovery is not marked complete until every server that needed auth
// has it.
func (r *Registry) DiscoverAndMaterialize(ctx context.Context, userID, sessionID string, servers []ServerConfig) ([]*oauth.AuthRequired, error) {
	if entry, ok := r.cache.Get(userID, sessionID); ok && entry.DiscoveryComplete {
		return nil, nil
	}

	var challenges []*oauth.AuthRequired
	r.locks.WithLock(lockKey(userID, sessionID), func() {
		if entry, ok := r.cache.Get(userID, sessionID); ok && entry.DiscoveryComplete {
			return
		}

		for _, srv := range servers {
			headers, err := r.resolveHeaders(ctx, userID, srv)
			if err != nil {
				var authRequired *oauth.AuthRequired
				if errors.As(err, &authRequired) {
					challenges = append(challenges, authRequired)
				}
				continue
			}

			r.discoverOne(ctx, userID, sessionID, srv, headers)
		}

		if len(challenges) == 0 {
			r.cache.MarkComplete(userID, sessionID)
		}
	})

	return challenges, nil
}

// discoverOne handles one server; a transport or protocol failure here
// never propagates, it only skips that server (spec §4.3 step 2,
// "independently; one failure does not fail others").
func (r *Registry) discoverOne(ctx context.Context, userID, sessionID string, srv ServerConfig, headers map[string]string) {
	tools, err := mcpclient.Discover(ctx, srv.toClientConfig(), headers)
	if err != nil {
		return
	}

	pluginID := "mcp_" + srv.Name
	metas := make([]session.ToolMetadata, 0, len(tools))
	for _, t := range tools {
		governance := catalog.DeriveGovernance(t.Name, t.Description, t.Annotations, srv.TrustLevel, srv.overrideFor(t.Name))

		r.catalog.RegisterDynamic(catalog.PluginTool{
			ToolID:      toolID(srv.Name, t.Name),
			PluginID:    pluginID,
			Name:        t.Name,
			Description: t.Description,
			Governance:  governance,
			AuthServer:  srv.AuthServer,
			Scopes:      srv.Scopes,
		})

		schema, _ := json.Marshal(t.InputSchema)
		metas = append(metas, session.ToolMetadata{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			Annotations: t.Annotations,
		})
	}

	r.cache.SetServerDiscovery(userID, sessionID, srv.Name, session.ServerDiscovery{Tools: metas})
}

// toolID builds "mcp_{server}-{server}_{tool_name}" per spec §4.3 step 2c.
func toolID(server, toolName string) string {
	return fmt.Sprintf("mcp_%s-%s_%s", server, server, toolName)
}

func (c ServerConfig) overrideFor(toolName string) *catalog.GovernanceOverride {
	o, ok := c.ToolGovernanceOverrides[toolName]
	if !ok {
		return nil
	}
	return &o
}

// ClientConfig exposes the mcpclient-level connection config for this
// server, so a kernel plugin builder (outside this package) can open
// the same kind of ephemeral connection §4.4 describes for a tool call,
// without this package needing to know about pkg/kernel.
func (c ServerConfig) ClientConfig() mcpclient.ServerConfig {
	return c.toClientConfig()
}

func (c ServerConfig) toClientConfig() mcpclient.ServerConfig {
	return mcpclient.ServerConfig{
		Name:           c.Name,
		Transport:      c.Transport,
		URL:            c.URL,
		Command:        c.Command,
		Args:           c.Args,
		Env:            c.Env,
		Timeout:        c.Timeout,
		SSEReadTimeout: c.SSEReadTimeout,
		VerifySSL:      c.VerifySSL,
	}
}

// resolveHeaders implements spec §4.3 step 2a: OAuth-backed auth when
// auth_server is configured, otherwise static headers with Authorization
// stripped (static bearer tokens must go through the broker, never
// config), plus optional user-context header injection.
func (r *Registry) resolveHeaders(ctx context.Context, userID string, srv ServerConfig) (map[string]string, error) {
	headers := make(map[string]string, len(srv.Headers)+1)

	if srv.AuthServer != "" {
		authHeader, err := r.resolver.AuthHeader(ctx, userID, oauth.ServerAuthConfig{
			ServerName: srv.Name,
			AuthServer: srv.AuthServer,
			Scopes:     srv.Scopes,
		})
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = authHeader
	} else {
		for k, v := range srv.Headers {
			if strings.EqualFold(k, "Authorization") {
				continue
			}
			headers[k] = v
		}
	}

	if srv.UserIDHeader != "" {
		headers[srv.UserIDHeader] = srv.userIDValue(userID)
	}

	return headers, nil
}

// userIDValue resolves the value injected under UserIDHeader. "auth"
// (the default) uses the authenticated user_id; "env" reads a static
// value out of the server's own env map instead, for servers that
// identify the caller by a fixed deployment-level id rather than the
// per-request user.
func (c ServerConfig) userIDValue(userID string) string {
	if c.UserIDSource == UserIDFromEnv {
		if v, ok := c.Env[c.UserIDHeader]; ok {
			return v
		}
	}
	return userID
}

// ForceRediscover drops the cached entry, forcing the next
// DiscoverAndMaterialize call to run discovery again — used after an
// OAuth challenge is resolved (spec §4.3 "Re-discovery on OAuth
// completion").
func (r *Registry) ForceRediscover(userID, sessionID string) {
	r.cache.Clear(userID, sessionID)
}
