// Package llm defines the chat-completion abstraction the agent loop drives.
//
// The LLM endpoint itself is an external collaborator (spec §1 Out of
// scope): this package only specifies the boundary interface the agent
// loop calls through, plus a deterministic in-memory fake used by tests.
// A real deployment supplies its own Provider backed by whatever model
// API it targets.
package llm

import (
	"context"
	"iter"

	"github.com/arcadeflow/agentserver/pkg/model"
)

// Provider is the chat-completion abstraction the agent loop drives.
//
// GenerateContent yields one or more Responses for the given Request:
//   - stream=false: exactly one Response, Partial=false.
//   - stream=true: zero or more Partial=true chunks, followed by exactly
//     one aggregated Partial=false Response carrying the full turn
//     (text and/or tool calls) for persistence.
type Provider interface {
	Name() string
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]
}

// Request contains the input for one LLM round.
type Request struct {
	SystemInstruction string
	Messages          []Message
	Tools             []ToolDefinition
	Config            *GenerateConfig
}

// Message is one turn of chat history handed to the provider.
type Message struct {
	Role Role `json:"role"`
	Text string `json:"text,omitempty"`

	// ToolCalls is populated on an assistant message that announced
	// function calls instead of (or alongside) text.
	ToolCalls []model.FunctionCall `json:"tool_calls,omitempty"`

	// ToolCallID/ToolResult are populated on a tool-role message answering
	// a specific prior FunctionCall.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
}

// Role mirrors model.Role for the subset meaningful to the LLM wire format.
type Role = model.Role

// ToolDefinition describes one callable tool for the LLM's function-calling
// surface.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GenerateConfig controls generation parameters. Cloned per round so
// processor pipelines never share mutable config across requests.
type GenerateConfig struct {
	Temperature   *float64
	MaxTokens     *int
	StopSequences []string
}

// Clone returns a deep copy, nil-safe.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		t := *c.Temperature
		clone.Temperature = &t
	}
	if c.MaxTokens != nil {
		m := *c.MaxTokens
		clone.MaxTokens = &m
	}
	if c.StopSequences != nil {
		clone.StopSequences = append([]string(nil), c.StopSequences...)
	}
	return &clone
}

// FinishReason indicates why generation stopped for one round.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Usage carries per-round token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is one yielded value from GenerateContent.
type Response struct {
	Text         string
	Partial      bool
	ToolCalls    []model.FunctionCall
	Usage        *Usage
	FinishReason FinishReason
}

// HasToolCalls reports whether this round ended with pending function calls.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}
