package handler

import (
	"context"
	"testing"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/kernel"
	"github.com/arcadeflow/agentserver/pkg/llm"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/session"
	"github.com/arcadeflow/agentserver/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct{}

func (fakeRefresher) Refresh(ctx context.Context, authServer string, prev *oauth.TokenData) (*oauth.TokenData, error) {
	return nil, assert.AnError
}

func (fakeRefresher) AuthorizationURL(authServer, flowID string, scopes []string, resourceURI string) string {
	return "https://auth.example.com/authorize?flow_id=" + flowID
}

func newTestHandler(t *testing.T, cfg Config, provider llm.Provider, cat *catalog.Catalog) (*Handler, task.Service) {
	t.Helper()
	if cat == nil {
		cat = catalog.New()
	}
	tasks := task.NewInMemoryService()
	cache := session.NewCache()
	storage := oauth.NewInMemoryStorage()
	resolver := oauth.NewResolver(storage, fakeRefresher{}, &keylock.Map[string]{})
	registry := mcpregistry.NewRegistry(cache, cat, resolver)

	h := New(cfg, Deps{
		Tasks:      tasks,
		Cache:      cache,
		Registry:   registry,
		Catalog:    cat,
		Resolver:   resolver,
		Refresher:  fakeRefresher{},
		Authorizer: auth.DummyAuthorizer{},
		Provider:   provider,
	})
	return h, tasks
}

func TestHandler_Invoke_TextOnlyCompletesTask(t *testing.T) {
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "hi there"}}}
	h, _ := newTestHandler(t, Config{}, provider, nil)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("hello")},
	})

	require.NoError(t, err)
	ar, ok := resp.(*model.AgentResponse)
	require.True(t, ok, "expected *model.AgentResponse, got %T", resp)
	assert.Equal(t, "hi there", ar.Output)
	assert.Equal(t, model.StatusCompleted, ar.Status)
	assert.NotEmpty(t, ar.TaskID)
}

func TestHandler_Invoke_UnauthenticatedRejected(t *testing.T) {
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{Text: "hi"}}}
	h, _ := newTestHandler(t, Config{}, provider, nil)

	_, err := h.Invoke(context.Background(), "", model.UserMessage{Items: []model.MultiModalItem{model.TextItem("hi")}})

	require.Error(t, err)
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindAuthentication, herr.Kind)
}

func TestHandler_Invoke_ToolCallRequiringHitlPauses(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "native", FunctionName: "dangerous"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{ToolCalls: []model.FunctionCall{call}}}}

	cat := catalog.New()
	cat.RegisterDynamic(catalog.PluginTool{
		ToolID:     call.ToolID(),
		PluginID:   "native",
		Name:       "dangerous",
		Governance: catalog.Governance{RequiresHITL: true},
	})

	cfg := Config{NativeTools: []NativeTool{{
		PluginName: "native",
		Function: kernel.NativeFunction{
			Name:    "dangerous",
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "done", nil },
		},
	}}}

	h, _ := newTestHandler(t, cfg, provider, cat)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("do the dangerous thing")},
	})

	require.NoError(t, err)
	hr, ok := resp.(*model.HitlResponse)
	require.True(t, ok, "expected *model.HitlResponse, got %T", resp)
	assert.Equal(t, []model.FunctionCall{call}, hr.ToolCalls)
	assert.NotEmpty(t, hr.ApprovalURL)
	assert.NotEmpty(t, hr.RejectionURL)
}

func TestHandler_Invoke_OnPausedTaskRejectedAsConflict(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "native", FunctionName: "delete_user_data"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{ToolCalls: []model.FunctionCall{call}}}}

	cat := catalog.New()
	cat.RegisterDynamic(catalog.PluginTool{
		ToolID: call.ToolID(), PluginID: "native", Name: "delete_user_data",
		Governance: catalog.Governance{RequiresHITL: true},
	})

	cfg := Config{NativeTools: []NativeTool{{
		PluginName: "native",
		Function: kernel.NativeFunction{
			Name:    "delete_user_data",
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "done", nil },
		},
	}}}

	h, tasks := newTestHandler(t, cfg, provider, cat)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("delete my data")},
	})
	require.NoError(t, err)
	hr := resp.(*model.HitlResponse)

	// Re-invoking with the same task_id must not slip a fresh round past
	// the HITL gate while the task is still awaiting resolution.
	_, err = h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		TaskID: hr.TaskID,
		Items:  []model.MultiModalItem{model.TextItem("never mind, go ahead anyway")},
	})
	require.Error(t, err)
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindConflict, herr.Kind)

	stored, err := tasks.Get(context.Background(), "alice", hr.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, stored.Status)
	assert.NotEmpty(t, stored.PendingToolCalls, "pending_tool_calls must survive the rejected re-invoke")
}

func TestHandler_Resume_ApproveExecutesAndCompletes(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "native", FunctionName: "dangerous"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}},
		{Text: "all done"},
	}}

	cat := catalog.New()
	cat.RegisterDynamic(catalog.PluginTool{
		ToolID: call.ToolID(), PluginID: "native", Name: "dangerous",
		Governance: catalog.Governance{RequiresHITL: true},
	})

	cfg := Config{NativeTools: []NativeTool{{
		PluginName: "native",
		Function: kernel.NativeFunction{
			Name:    "dangerous",
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "done", nil },
		},
	}}}

	h, _ := newTestHandler(t, cfg, provider, cat)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("do the dangerous thing")},
	})
	require.NoError(t, err)
	hr := resp.(*model.HitlResponse)

	resumed, err := h.Resume(context.Background(), "Bearer alice", hr.RequestID, model.DecisionApprove, "")
	require.NoError(t, err)
	ar, ok := resumed.(*model.AgentResponse)
	require.True(t, ok, "expected *model.AgentResponse, got %T", resumed)
	assert.Equal(t, "all done", ar.Output)
	assert.Equal(t, model.StatusCompleted, ar.Status)
}

func TestHandler_Resume_RejectCancelsTask(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "native", FunctionName: "dangerous"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{{ToolCalls: []model.FunctionCall{call}}}}

	cat := catalog.New()
	cat.RegisterDynamic(catalog.PluginTool{
		ToolID: call.ToolID(), PluginID: "native", Name: "dangerous",
		Governance: catalog.Governance{RequiresHITL: true},
	})

	cfg := Config{NativeTools: []NativeTool{{
		PluginName: "native",
		Function: kernel.NativeFunction{
			Name:    "dangerous",
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "done", nil },
		},
	}}}

	h, tasks := newTestHandler(t, cfg, provider, cat)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("do the dangerous thing")},
	})
	require.NoError(t, err)
	hr := resp.(*model.HitlResponse)

	rejected, err := h.Resume(context.Background(), "Bearer alice", hr.RequestID, model.DecisionReject, "not today")
	require.NoError(t, err)
	rr, ok := rejected.(*model.RejectedToolResponse)
	require.True(t, ok, "expected *model.RejectedToolResponse, got %T", rejected)
	assert.Equal(t, model.StatusCanceled, rr.Status)

	stored, err := tasks.Get(context.Background(), "alice", hr.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, stored.Status)
}

func TestHandler_Resume_IdempotentOnAlreadyCompletedTask(t *testing.T) {
	call := model.FunctionCall{ID: "call-1", PluginName: "native", FunctionName: "dangerous"}
	provider := &llm.ScriptedProvider{Turns: []llm.Response{
		{ToolCalls: []model.FunctionCall{call}},
		{Text: "all done"},
	}}

	cat := catalog.New()
	cat.RegisterDynamic(catalog.PluginTool{
		ToolID: call.ToolID(), PluginID: "native", Name: "dangerous",
		Governance: catalog.Governance{RequiresHITL: true},
	})

	cfg := Config{NativeTools: []NativeTool{{
		PluginName: "native",
		Function: kernel.NativeFunction{
			Name:    "dangerous",
			Handler: func(ctx context.Context, args map[string]any) (string, error) { return "done", nil },
		},
	}}}

	h, _ := newTestHandler(t, cfg, provider, cat)

	resp, err := h.Invoke(context.Background(), "Bearer alice", model.UserMessage{
		Items: []model.MultiModalItem{model.TextItem("do the dangerous thing")},
	})
	require.NoError(t, err)
	hr := resp.(*model.HitlResponse)

	_, err = h.Resume(context.Background(), "Bearer alice", hr.RequestID, model.DecisionApprove, "")
	require.NoError(t, err)

	again, err := h.Resume(context.Background(), "Bearer alice", hr.RequestID, model.DecisionApprove, "")
	require.NoError(t, err)
	ar, ok := again.(*model.AgentResponse)
	require.True(t, ok, "expected idempotent *model.AgentResponse replay, got %T", again)
	assert.Equal(t, "all done", ar.Output)
}
