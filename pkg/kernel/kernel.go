// Package kernel is the function-dispatch kernel spec §1 abstracts away
// as an external collaborator and spec §4.2/§9 names explicitly: it
// holds plugin instances and dispatches function calls by name,
// uniformly over native and MCP-backed plugins.
//
// Grounded on the teacher's pkg/tool.Tool/CallableTool/Toolset interface
// hierarchy (v2/agent/llmagent/processor.go's collectTools composition),
// generalized from "a Toolset resolves a list of Tools" into "a Kernel
// dispatches FunctionCalls to PluginInstances" — the cyclic agent/kernel/
// plugin graph spec §9 calls out is broken the same way: the kernel owns
// a map<plugin_name, PluginInstance> addressed by id, and a PluginInstance
// never holds a pointer back to the kernel or registry that built it.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcadeflow/agentserver/pkg/model"
)

// FunctionSignature describes one callable function within a plugin, in
// the shape the agent loop needs to build an llm.ToolDefinition.
type FunctionSignature struct {
	FunctionName string
	Description  string
	Parameters   map[string]any
}

// Signature is a FunctionSignature qualified with the plugin that owns
// it, as returned by Kernel.Signatures.
type Signature struct {
	PluginName string
	FunctionSignature
}

// Result is the outcome of one function invocation.
type Result struct {
	Content string
	IsError bool
}

// PluginInstance is the capability set spec §9 describes as
// `{get_function_signatures, invoke(name, args) -> result}`: one
// implementation per plugin kind (native, MCP), treated uniformly by
// the Kernel.
type PluginInstance interface {
	Signatures() []FunctionSignature
	Invoke(ctx context.Context, functionName string, args map[string]any) (Result, error)
}

// Kernel dispatches FunctionCalls to the PluginInstance registered under
// the call's plugin_name. The zero value is not ready; use New.
type Kernel struct {
	mu      sync.RWMutex
	plugins map[string]PluginInstance
}

// New builds an empty Kernel.
func New() *Kernel {
	return &Kernel{plugins: make(map[string]PluginInstance)}
}

// Register installs a plugin instance under pluginName, replacing any
// prior instance under the same name (agent rebuilds re-register their
// full plugin set per request; there is no cross-request identity to
// preserve).
func (k *Kernel) Register(pluginName string, p PluginInstance) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.plugins[pluginName] = p
}

// Unregister removes a plugin instance, if present.
func (k *Kernel) Unregister(pluginName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.plugins, pluginName)
}

// Signatures aggregates every registered plugin's function signatures,
// qualified by plugin name, for the agent loop to hand to the LLM as
// its function-calling surface.
func (k *Kernel) Signatures() []Signature {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var out []Signature
	for pluginName, p := range k.plugins {
		for _, fs := range p.Signatures() {
			out = append(out, Signature{PluginName: pluginName, FunctionSignature: fs})
		}
	}
	return out
}

// Invoke looks up call.PluginName and dispatches to that plugin's
// Invoke, per spec §4.2's function-call execution step: "look up the
// plugin instance in the kernel by plugin_name... arguments are
// already parsed by the kernel". An unknown plugin or function
// surfaces as an error, which the agent loop folds into a tool-role
// error item rather than aborting the round (spec §4.2 "failure of a
// single call propagates as a tool-role item with an error payload").
func (k *Kernel) Invoke(ctx context.Context, call model.FunctionCall) (Result, error) {
	k.mu.RLock()
	p, ok := k.plugins[call.PluginName]
	k.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("kernel: unknown plugin %q", call.PluginName)
	}
	return p.Invoke(ctx, call.FunctionName, call.Arguments)
}
