// Package session holds the per-(user_id, session_id) MCP discovery
// cache (spec §4.3): the materialized set of MCP-hosted tools a user is
// authorized to see, stored so that per-request agent builds only
// instantiate plugin objects and never reach across the network.
//
// The map shape here follows the teacher's pkg/session.go
// (mutex-guarded map of session state, session-key composition), but
// the contents are specialized to spec §4.3's data contract rather than
// the teacher's generic chat-session abstraction.
package session

import (
	"encoding/json"
	"sync"

	"github.com/arcadeflow/agentserver/pkg/catalog"
)

// ToolMetadata is the serializable shape of one MCP-discovered tool, as
// returned by list_tools (spec §4.4) and cached here until plugin
// instantiation.
type ToolMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema json.RawMessage     `json:"input_schema"`
	Annotations catalog.Annotations `json:"annotations"`
}

// ServerDiscovery is the cached result of discovering one MCP server.
type ServerDiscovery struct {
	Tools []ToolMetadata `json:"tools"`
	// MCPSessionID is set only when the server is stateful; ephemeral
	// connections (spec §4.4) do not populate this.
	MCPSessionID string `json:"mcp_session_id,omitempty"`
}

// Entry is the full discovery state for one (user_id, session_id) pair.
type Entry struct {
	DiscoveryComplete bool                       `json:"discovery_complete"`
	Servers           map[string]ServerDiscovery `json:"servers"`
}

func newEntry() *Entry {
	return &Entry{Servers: make(map[string]ServerDiscovery)}
}

// Cache is the per-(user_id, session_id) discovery store. The zero
// value is ready to use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

func key(userID, sessionID string) string { return userID + "|" + sessionID }

// Get returns the cached discovery entry for (user_id, session_id), if
// any. A cache miss for one user never returns another user's entry —
// the key itself encodes the per-user isolation invariant (spec §4.3).
func (c *Cache) Get(userID, sessionID string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key(userID, sessionID)]
	return e, ok
}

// GetOrCreate returns the existing entry or creates and stores an empty
// one. Used inside the discovery orchestrator's double-checked locking
// (spec §4.3 step 1): the caller holds the per-(user,session) lock
// around both the pre-check Get and the eventual Set.
func (c *Cache) GetOrCreate(userID, sessionID string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(userID, sessionID)
	e, ok := c.entries[k]
	if !ok {
		e = newEntry()
		c.entries[k] = e
	}
	return e
}

// SetServerDiscovery records one server's discovered tools under the
// given entry, additive across servers (spec §4.3 step 2d).
func (c *Cache) SetServerDiscovery(userID, sessionID, serverName string, sd ServerDiscovery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(userID, sessionID)
	e, ok := c.entries[k]
	if !ok {
		e = newEntry()
		c.entries[k] = e
	}
	e.Servers[serverName] = sd
}

// MarkComplete flags discovery as finished for (user_id, session_id),
// per spec §4.3 step 4.
func (c *Cache) MarkComplete(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key(userID, sessionID)]
	if !ok {
		e = newEntry()
		c.entries[key(userID, sessionID)] = e
	}
	e.DiscoveryComplete = true
}

// Clear drops the cached entry, forcing re-discovery on the next
// request. Used after an OAuth challenge is resolved (spec §4.3
// "Re-discovery on OAuth completion") and is the only way a user's
// session entry disappears short of process restart.
func (c *Cache) Clear(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(userID, sessionID))
}
