// Package agentloop drives the LLM to completion across any number of
// tool-call rounds (spec §4.2), interposing the HITL gate before any
// function executes.
//
// Grounded on the teacher's v2/agent/llmagent processor pipeline and
// v2/server.Executor round-trip shape, generalized: the teacher threads
// a2a.Message history through a RequestProcessor/ResponseProcessor
// chain bound to one LLM backend; this package reconstructs chat
// history from a task's own append-only item log (spec §4.2
// "chat-history reconstruction") and dispatches through pkg/kernel
// instead of a fixed toolset, since the server is multi-tenant and
// rebuilds its tool surface per request rather than once per process.
package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcadeflow/agentserver/pkg/hitl"
	"github.com/arcadeflow/agentserver/pkg/kernel"
	"github.com/arcadeflow/agentserver/pkg/llm"
	"github.com/arcadeflow/agentserver/pkg/model"
)

// DefaultMaxRounds is spec §4.2's "optional max-round cap (configurable,
// default 25)".
const DefaultMaxRounds = 25

// Outcome is how one Run/Resume/RunStreaming call ended.
type Outcome int

const (
	// OutcomeCompleted means the LLM produced a text-only turn; task.Status
	// is now StatusCompleted.
	OutcomeCompleted Outcome = iota
	// OutcomePaused means a round's tool calls required HITL approval;
	// task.Status is now StatusPaused.
	OutcomePaused
	// OutcomeCancelled means the caller's yield func stopped a streaming
	// run before the round's final response arrived; task is left exactly
	// as it was before the round started.
	OutcomeCancelled
)

// Result is returned by Run/Resume/RunStreaming.
type Result struct {
	Outcome   Outcome
	Output    string               // set when Outcome == OutcomeCompleted
	ToolCalls []model.FunctionCall // set when Outcome == OutcomePaused
	Usage     model.TokenUsage
}

// Loop drives the tool-call state machine for one agent configuration.
// A Loop is built fresh per request (its kernel is request-scoped —
// see pkg/kernel's per-user MCP plugin instantiation), but holds no
// request-specific state itself, so it could be reused across calls
// within the same request.
type Loop struct {
	provider  llm.Provider
	kernel    *kernel.Kernel
	gate      *hitl.Gate
	maxRounds int
}

// New builds a Loop. maxRounds <= 0 uses DefaultMaxRounds.
func New(provider llm.Provider, k *kernel.Kernel, gate *hitl.Gate, maxRounds int) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{provider: provider, kernel: k, gate: gate, maxRounds: maxRounds}
}

// Run executes the unary state machine (spec §4.2's diagram) starting
// from task's current item log, appending items and mutating
// task.Status/PendingToolCalls/PendingRequestID as it goes. The caller
// is responsible for persisting task before and after.
func (l *Loop) Run(ctx context.Context, task *model.AgentTask, requestID string) (*Result, error) {
	var usage model.TokenUsage
	for round := 0; round < l.maxRounds; round++ {
		resp, err := l.generateUnary(ctx, task)
		if err != nil {
			return nil, err
		}
		usage = usage.Add(usageFrom(resp.Usage))

		if !resp.HasToolCalls() {
			return l.complete(task, requestID, resp, usage), nil
		}

		if result := l.handleToolRound(task, requestID, resp, usage); result != nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("agentloop: exceeded max rounds (%d)", l.maxRounds)
}

// Resume implements spec §4.1 resume-on-approve step 4: execute every
// pending FunctionCall, append tool results, clear the pending set, set
// status Running, then continue the loop with the updated history.
func (l *Loop) Resume(ctx context.Context, task *model.AgentTask, requestID string) (*Result, error) {
	l.executeCalls(ctx, task, requestID, task.PendingToolCalls)

	task.PendingToolCalls = nil
	task.PendingRequestID = ""
	task.Status = model.StatusRunning

	return l.Run(ctx, task, requestID)
}

// PartialFunc receives one streamed text fragment. Returning false stops
// the stream early (spec §4.2: "cancellation aborts at the next yield
// point").
type PartialFunc func(text string) bool

// RunStreaming drives the same state machine as Run, but streams text
// fragments from each round's LLM call to yield as they arrive. A tool
// round itself is never streamed as content (spec §4.2: "tool rounds
// are not streamed"); only a round's own text reaches yield.
//
// If yield returns false mid-round, RunStreaming stops immediately and
// returns OutcomeCancelled without mutating task — an already-started
// tool execution for a prior round still ran to completion, but no new
// LLM round is started once cancellation is observed.
func (l *Loop) RunStreaming(ctx context.Context, task *model.AgentTask, requestID string, yield PartialFunc) (*Result, error) {
	var usage model.TokenUsage
	for round := 0; round < l.maxRounds; round++ {
		resp, cancelled, err := l.generateStreaming(ctx, task, yield)
		if err != nil {
			return nil, err
		}
		if cancelled {
			return &Result{Outcome: OutcomeCancelled}, nil
		}
		usage = usage.Add(usageFrom(resp.Usage))

		if !resp.HasToolCalls() {
			return l.complete(task, requestID, resp, usage), nil
		}

		if result := l.handleToolRound(task, requestID, resp, usage); result != nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("agentloop: exceeded max rounds (%d)", l.maxRounds)
}

// generateStreaming drains one streaming round, forwarding partial text
// chunks to yield and returning the final aggregated Response. cancelled
// is true if yield returned false before the final response arrived.
func (l *Loop) generateStreaming(ctx context.Context, task *model.AgentTask, yield PartialFunc) (resp *llm.Response, cancelled bool, err error) {
	req := l.buildRequest(task)
	var out *llm.Response
	var genErr error
	for chunk, e := range l.provider.GenerateContent(ctx, req, true) {
		if e != nil {
			genErr = e
			break
		}
		if chunk.Partial {
			if !yield(chunk.Text) {
				return nil, true, nil
			}
			continue
		}
		out = chunk
	}
	if genErr != nil {
		return nil, false, fmt.Errorf("agentloop: generate: %w", genErr)
	}
	if out == nil {
		return nil, false, fmt.Errorf("agentloop: provider returned no final response")
	}
	return out, false, nil
}

// ResumeStreaming is Resume's streaming counterpart: it executes the
// paused task's pending calls (not streamed, per spec §4.2 "tool rounds
// are not streamed"), then continues via RunStreaming.
func (l *Loop) ResumeStreaming(ctx context.Context, task *model.AgentTask, requestID string, yield PartialFunc) (*Result, error) {
	l.executeCalls(ctx, task, requestID, task.PendingToolCalls)

	task.PendingToolCalls = nil
	task.PendingRequestID = ""
	task.Status = model.StatusRunning

	return l.RunStreaming(ctx, task, requestID, yield)
}

// generateUnary drains the provider's non-streaming iterator down to
// its single Response.
func (l *Loop) generateUnary(ctx context.Context, task *model.AgentTask) (*llm.Response, error) {
	req := l.buildRequest(task)
	var out *llm.Response
	var genErr error
	for resp, err := range l.provider.GenerateContent(ctx, req, false) {
		if err != nil {
			genErr = err
			break
		}
		out = resp
	}
	if genErr != nil {
		return nil, fmt.Errorf("agentloop: generate: %w", genErr)
	}
	if out == nil {
		return nil, fmt.Errorf("agentloop: provider returned no response")
	}
	return out, nil
}

func (l *Loop) buildRequest(task *model.AgentTask) *llm.Request {
	return &llm.Request{
		Messages: buildMessages(task),
		Tools:    toolDefinitions(l.kernel.Signatures()),
	}
}

// complete applies the text-only completion branch (spec §4.2 "(a)
// text-only -> Done", spec §4.1 step 7: "append assistant item, set
// status Completed").
func (l *Loop) complete(task *model.AgentTask, requestID string, resp *llm.Response, usage model.TokenUsage) *Result {
	text := model.TextItem(resp.Text)
	task.AppendItem(model.AgentTaskItem{
		TaskID:    task.TaskID,
		RequestID: requestID,
		Role:      model.RoleAssistant,
		Text:      &text,
	})
	task.Status = model.StatusCompleted

	return &Result{Outcome: OutcomeCompleted, Output: resp.Text, Usage: usage}
}

// handleToolRound applies the HITL gate to one LLM round's tool calls.
// Returns a non-nil *Result only when the round pauses; a nil return
// means the calls executed and the caller should start another round.
// usage is the running total across every round so far, including this
// one, so a paused round still reports the tokens it actually spent.
func (l *Loop) handleToolRound(task *model.AgentTask, requestID string, resp *llm.Response, usage model.TokenUsage) *Result {
	task.AppendItem(model.AgentTaskItem{
		TaskID:    task.TaskID,
		RequestID: requestID,
		Role:      model.RoleAssistant,
		ToolCalls: &model.AssistantToolCalls{Calls: resp.ToolCalls},
	})

	if l.gate.Screen(resp.ToolCalls) {
		task.PendingRequestID = requestID
		task.PendingToolCalls = resp.ToolCalls
		task.Status = model.StatusPaused
		return &Result{Outcome: OutcomePaused, ToolCalls: resp.ToolCalls, Usage: usage}
	}

	l.executeCalls(context.Background(), task, requestID, resp.ToolCalls)
	return nil
}

// executeCalls runs every call through the kernel and appends a
// tool-role item per result. A dispatch error (unknown plugin/function,
// or a header-resolution failure from an MCP plugin) folds into an
// error-bearing tool item rather than aborting the round (spec §4.2:
// "failure of a single call propagates as a tool-role item with an
// error payload, then re-enters the loop").
func (l *Loop) executeCalls(ctx context.Context, task *model.AgentTask, requestID string, calls []model.FunctionCall) {
	for _, call := range calls {
		res, err := l.kernel.Invoke(ctx, call)
		toolResult := &model.ToolResult{FunctionCallID: call.ID}
		if err != nil {
			toolResult.Error = err.Error()
		} else if res.IsError {
			toolResult.Error = res.Content
		} else {
			toolResult.Content = res.Content
		}

		task.AppendItem(model.AgentTaskItem{
			TaskID:     task.TaskID,
			RequestID:  requestID,
			Role:       model.RoleTool,
			ToolResult: toolResult,
		})
	}
}

// buildMessages reconstructs chat history from task.Items, per spec
// §4.2: "For each item in order: user items -> user message; assistant
// text -> assistant message; assistant-with-tool-calls items ->
// assistant with tool-call structure; tool items -> tool-role messages
// keyed to the FunctionCall.id they answer."
func buildMessages(task *model.AgentTask) []llm.Message {
	msgs := make([]llm.Message, 0, len(task.Items))
	for _, item := range task.Items {
		switch item.Role {
		case model.RoleUser:
			if item.Text != nil {
				msgs = append(msgs, llm.Message{Role: model.RoleUser, Text: item.Text.Text})
			}
		case model.RoleAssistant:
			switch {
			case item.Text != nil:
				msgs = append(msgs, llm.Message{Role: model.RoleAssistant, Text: item.Text.Text})
			case item.ToolCalls != nil:
				msgs = append(msgs, llm.Message{Role: model.RoleAssistant, ToolCalls: item.ToolCalls.Calls})
			}
		case model.RoleTool:
			if item.ToolResult != nil {
				content := item.ToolResult.Content
				if item.ToolResult.Error != "" {
					content = item.ToolResult.Error
				}
				msgs = append(msgs, llm.Message{
					Role:       model.RoleTool,
					ToolCallID: item.ToolResult.FunctionCallID,
					ToolResult: content,
				})
			}
		}
	}
	return msgs
}

func toolDefinitions(sigs []kernel.Signature) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(sigs))
	for _, s := range sigs {
		defs = append(defs, llm.ToolDefinition{
			Name:        ToolName(s.PluginName, s.FunctionName),
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return defs
}

// toolNameSeparator joins plugin_name and function_name into the flat
// name a real Provider's function-calling wire format exposes to the
// LLM (spec's abstraction treats the chat-completion endpoint itself as
// out of scope; this is the convention a concrete Provider must use to
// recover PluginName/FunctionName when building a model.FunctionCall).
const toolNameSeparator = "::"

// ToolName builds the flat function-calling name for one kernel signature.
func ToolName(pluginName, functionName string) string {
	return pluginName + toolNameSeparator + functionName
}

// ParseToolName recovers (pluginName, functionName) from a name built by
// ToolName. A name without the separator is returned as an empty plugin
// name with the whole string as functionName.
func ParseToolName(name string) (pluginName, functionName string) {
	idx := strings.Index(name, toolNameSeparator)
	if idx < 0 {
		return "", name
	}
	return name[:idx], name[idx+len(toolNameSeparator):]
}

func usageFrom(u *llm.Usage) model.TokenUsage {
	if u == nil {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
