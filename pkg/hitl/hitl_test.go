package hitl

import (
	"testing"

	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, PluginMCP, KindOf("mcp_github"))
	assert.Equal(t, PluginNative, KindOf("sensitive_plugin"))
}

func TestGate_Requires_UsesCatalogEntry(t *testing.T) {
	c := catalog.New()
	c.RegisterDynamic(catalog.PluginTool{
		ToolID:     "sensitive_plugin-delete_user_data",
		PluginID:   "sensitive_plugin",
		Governance: catalog.Governance{RequiresHITL: true},
	})
	g := NewGate(c)

	call := model.FunctionCall{PluginName: "sensitive_plugin", FunctionName: "delete_user_data"}
	assert.True(t, g.Requires(call))
}

func TestGate_Requires_UnknownNativeDefaultsToNoHITL(t *testing.T) {
	g := NewGate(catalog.New())
	call := model.FunctionCall{PluginName: "native_tool", FunctionName: "noop"}
	assert.False(t, g.Requires(call))
}

func TestGate_Requires_UnknownMCPDefaultsToHITL(t *testing.T) {
	g := NewGate(catalog.New())
	call := model.FunctionCall{PluginName: "mcp_github", FunctionName: "create_issue"}
	assert.True(t, g.Requires(call))
}

func TestGate_Screen_PausesWholeRoundIfAnyCallRequiresHITL(t *testing.T) {
	c := catalog.New()
	c.RegisterDynamic(catalog.PluginTool{ToolID: "a-b", Governance: catalog.Governance{RequiresHITL: false}})
	c.RegisterDynamic(catalog.PluginTool{ToolID: "c-d", Governance: catalog.Governance{RequiresHITL: true}})
	g := NewGate(c)

	calls := []model.FunctionCall{
		{PluginName: "a", FunctionName: "b"},
		{PluginName: "c", FunctionName: "d"},
	}
	assert.True(t, g.Screen(calls))
}

func TestGate_Screen_NoPauseWhenAllClear(t *testing.T) {
	c := catalog.New()
	c.RegisterDynamic(catalog.PluginTool{ToolID: "a-b", Governance: catalog.Governance{RequiresHITL: false}})
	g := NewGate(c)

	assert.False(t, g.Screen([]model.FunctionCall{{PluginName: "a", FunctionName: "b"}}))
}

func TestBuildHitlResponse(t *testing.T) {
	resp := BuildHitlResponse("sess-1", "task-1", "req-1", []model.FunctionCall{{ID: "call-1"}}, DefaultURLTemplate)
	assert.Equal(t, "/resume/req-1?decision=approve", resp.ApprovalURL)
	assert.Equal(t, "/resume/req-1?decision=reject", resp.RejectionURL)
	assert.Len(t, resp.ToolCalls, 1)
}

func TestApplyRejection_AppendsToolResultsAndCancels(t *testing.T) {
	task := &model.AgentTask{
		TaskID:           "task-1",
		Status:           model.StatusPaused,
		PendingRequestID: "req-1",
		PendingToolCalls: []model.FunctionCall{{ID: "call-1"}, {ID: "call-2"}},
	}

	resp := ApplyRejection(task, "req-1", "user declined")

	require.Equal(t, model.StatusCanceled, task.Status)
	assert.Empty(t, task.PendingRequestID)
	assert.Empty(t, task.PendingToolCalls)
	assert.Len(t, task.Items, 2)
	assert.Equal(t, "call-1", task.Items[0].ToolResult.FunctionCallID)
	assert.Contains(t, task.Items[0].ToolResult.Error, "user declined")
	assert.Equal(t, model.StatusCanceled, resp.Status)
	assert.Equal(t, "user declined", resp.Reason)
}
