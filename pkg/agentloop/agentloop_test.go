package agentloop

import (
	"context"
	"testing"

	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/hitl"
	"github.com/arcadeflow/agentserver/pkg/kernel"
	"github.com/arcadeflow/agentserver/pkg/llm"
	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask() *model.AgentTask {
	return &model.AgentTask{TaskID: "task-1", SessionID: "sess-1", UserID: "alice", Status: model.StatusRunning}
}

func withUserMessage(task *model.AgentTask, text string) *model.AgentTask {
	item := model.TextItem(text)
	task.AppendItem(model.AgentTaskItem{TaskID: task.TaskID, RequestID: "req-0", Role: model.RoleUser, Text: &item})
	return task
}

func TestLoop_Run_TextOnlyCompletesTask(t *testing.T) {
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "hello there"}}}
	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)

	task := withUserMessage(newTask(), "hi")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "hello there", result.Output)
	assert.Equal(t, model.StatusCompleted, task.Status)
	require.Len(t, task.Items, 2)
	assert.Equal(t, model.RoleAssistant, task.Items[1].Role)
	assert.Equal(t, "hello there", task.Items[1].Text.Text)
}

func TestLoop_Run_ToolCallRequiringHitlPauses(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "mcp_github", FunctionName: "github_close_issue"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{ToolCalls: []model.FunctionCall{call}}}}
	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)

	task := withUserMessage(newTask(), "close issue 4")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, result.Outcome)
	assert.Equal(t, model.StatusPaused, task.Status)
	assert.Equal(t, "req-1", task.PendingRequestID)
	assert.Equal(t, []model.FunctionCall{call}, task.PendingToolCalls)
}

func TestLoop_Run_NativeToolExecutesAndLoopsToSecondRound(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "calc", FunctionName: "add", Arguments: map[string]any{"a": 1, "b": 2}}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}},
		{Text: "the sum is 3"},
	}}

	k := kernel.New()
	k.Register("calc", kernel.NewNativePlugin(kernel.NativeFunction{
		Name: "add",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "3", nil
		},
	}))

	loop := New(provider, k, hitl.NewGate(catalog.New()), 0)
	task := withUserMessage(newTask(), "add 1 and 2")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "the sum is 3", result.Output)

	var sawToolResult bool
	for _, item := range task.Items {
		if item.Role == model.RoleTool && item.ToolResult != nil && item.ToolResult.Content == "3" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult, "expected a tool-role item carrying the executed result")
}

func TestLoop_Run_UnknownPluginDispatchErrorBecomesToolError(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "missing", FunctionName: "whatever"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}},
		{Text: "done"},
	}}

	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)
	task := withUserMessage(newTask(), "do something")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	last := task.Items[len(task.Items)-2]
	require.NotNil(t, last.ToolResult)
	assert.NotEmpty(t, last.ToolResult.Error)
}

func TestLoop_Run_ExceedsMaxRoundsErrors(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "calc", FunctionName: "add"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{ToolCalls: []model.FunctionCall{call}}}}

	k := kernel.New()
	k.Register("calc", kernel.NewNativePlugin(kernel.NativeFunction{
		Name:    "add",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "ok", nil },
	}))

	loop := New(provider, k, hitl.NewGate(catalog.New()), 2)
	task := withUserMessage(newTask(), "loop forever")
	_, err := loop.Run(context.Background(), task, "req-1")

	assert.Error(t, err)
}

func TestLoop_Resume_ExecutesPendingCallsAndContinues(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "calc", FunctionName: "add"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "the sum is 3"}}}

	k := kernel.New()
	k.Register("calc", kernel.NewNativePlugin(kernel.NativeFunction{
		Name:    "add",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "3", nil },
	}))

	loop := New(provider, k, hitl.NewGate(catalog.New()), 0)
	task := withUserMessage(newTask(), "add 1 and 2")
	task.Status = model.StatusPaused
	task.PendingRequestID = "req-1"
	task.PendingToolCalls = []model.FunctionCall{call}

	result, err := loop.Resume(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Empty(t, task.PendingToolCalls)
	assert.Empty(t, task.PendingRequestID)
}

func TestLoop_RunStreaming_YieldsPartialChunksThenCompletes(t *testing.T) {
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "hello world"}}}
	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)

	var chunks []string
	task := withUserMessage(newTask(), "hi")
	result, err := loop.RunStreaming(context.Background(), task, "req-1", func(text string) bool {
		chunks = append(chunks, text)
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "hello world", result.Output)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "hello world", chunks[0]+chunks[1])
}

func TestLoop_RunStreaming_CancellationAppendsNoAssistantItem(t *testing.T) {
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "partial thought continues"}}}
	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)

	task := withUserMessage(newTask(), "hi")
	result, err := loop.RunStreaming(context.Background(), task, "req-1", func(text string) bool {
		return false
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.Equal(t, model.StatusRunning, task.Status)
	assert.Len(t, task.Items, 1, "only the original user item, no assistant item appended on cancellation")
}

func TestLoop_Run_AggregatesUsageAcrossRounds(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "calc", FunctionName: "add", Arguments: map[string]any{"a": 1, "b": 2}}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}, Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		{Text: "the sum is 3", Usage: &llm.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28}},
	}}

	k := kernel.New()
	k.Register("calc", kernel.NewNativePlugin(kernel.NativeFunction{
		Name:    "add",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "3", nil },
	}))

	loop := New(provider, k, hitl.NewGate(catalog.New()), 0)
	task := withUserMessage(newTask(), "add 1 and 2")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, model.TokenUsage{PromptTokens: 30, CompletionTokens: 13, TotalTokens: 43}, result.Usage)
}

func TestLoop_Run_PausedRoundReportsUsageSoFar(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "mcp_github", FunctionName: "github_close_issue"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}, Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	loop := New(provider, kernel.New(), hitl.NewGate(catalog.New()), 0)

	task := withUserMessage(newTask(), "close issue 4")
	result, err := loop.Run(context.Background(), task, "req-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, result.Outcome)
	assert.Equal(t, model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, result.Usage)
}

func TestToolName_RoundTrips(t *testing.T) {
	name := ToolName("mcp_github", "github_close_issue")
	plugin, fn := ParseToolName(name)
	assert.Equal(t, "mcp_github", plugin)
	assert.Equal(t, "github_close_issue", fn)
}
