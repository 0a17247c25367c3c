// Package hitl implements the Human-in-the-Loop gate (spec §4.5): given
// the tool calls an LLM round emitted, decide whether a human must
// approve them before execution, and build the pause/resume responses
// around that decision.
//
// The gate itself raises a decision, grounded on the teacher's
// v2/tool/approvaltool.ApprovalTool.RequiresApproval() pattern of a
// single boolean gate per call, generalized here to a catalog-driven
// per-tool-call decision instead of one built-in tool always answering
// true.
package hitl

import (
	"fmt"
	"strings"
	"time"

	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/model"
)

// PluginKind distinguishes a native, in-process tool from one
// discovered via MCP, for the "absent from catalog" default policy in
// spec §4.5 step 2.
type PluginKind int

const (
	PluginNative PluginKind = iota
	PluginMCP
)

// mcpPluginPrefix matches spec §4.3's "mcp_{server}" plugin_id naming.
const mcpPluginPrefix = "mcp_"

// KindOf infers a FunctionCall's PluginKind from its plugin_name, per
// the "mcp_{server}" naming convention established at discovery time
// (spec §4.3 step 2c).
func KindOf(pluginName string) PluginKind {
	if strings.HasPrefix(pluginName, mcpPluginPrefix) {
		return PluginMCP
	}
	return PluginNative
}

// Gate decides, for each FunctionCall, whether it requires human
// approval before execution.
type Gate struct {
	catalog *catalog.Catalog
}

// NewGate builds a Gate backed by the given catalog.
func NewGate(c *catalog.Catalog) *Gate {
	return &Gate{catalog: c}
}

// Requires implements spec §4.5's algorithm: look up tool_id in the
// catalog; if absent, a native tool defaults to no-HITL while an MCP
// tool defaults to requiring HITL (conservative — this should not occur
// once discovery has populated the catalog).
func (g *Gate) Requires(call model.FunctionCall) bool {
	entry, ok := g.catalog.Get(call.ToolID())
	if !ok {
		return KindOf(call.PluginName) == PluginMCP
	}
	return entry.Governance.RequiresHITL
}

// Screen evaluates every call in one LLM round. If any call requires
// approval, the entire round pauses — spec §4.1 step 8 records
// pending_tool_calls for the whole batch, not just the flagged calls,
// so a pause is all-or-nothing per round.
func (g *Gate) Screen(calls []model.FunctionCall) (pause bool) {
	for _, c := range calls {
		if g.Requires(c) {
			return true
		}
	}
	return false
}

// URLTemplate formats spec §4.1's templated approval/rejection URLs
// ("/resume/<request_id>" style) for a given request.
type URLTemplate struct {
	ApprovalPattern  string // e.g. "/resume/%s?decision=approve"
	RejectionPattern string // e.g. "/resume/%s?decision=reject"
}

// DefaultURLTemplate matches the "/resume/<R>" shape from spec §9's
// worked examples.
var DefaultURLTemplate = URLTemplate{
	ApprovalPattern:  "/resume/%s?decision=approve",
	RejectionPattern: "/resume/%s?decision=reject",
}

// BuildHitlResponse constructs the HitlResponse returned to the caller
// when a round pauses (spec §4.1 step 8).
func BuildHitlResponse(sessionID, taskID, requestID string, calls []model.FunctionCall, tmpl URLTemplate) *model.HitlResponse {
	return &model.HitlResponse{
		SessionID:    sessionID,
		TaskID:       taskID,
		RequestID:    requestID,
		ToolCalls:    calls,
		ApprovalURL:  fmt.Sprintf(tmpl.ApprovalPattern, requestID),
		RejectionURL: fmt.Sprintf(tmpl.RejectionPattern, requestID),
	}
}

// ApplyRejection appends a tool-rejected record for each pending call
// and returns the RejectedToolResponse, per spec §4.1 resume step 3.
// It also sets status Canceled and clears pending_tool_calls and the
// pending request_id on task; persisting the task via Service.Update is
// the caller's responsibility.
func ApplyRejection(task *model.AgentTask, requestID, reason string) *model.RejectedToolResponse {
	now := time.Now().UTC()
	for _, call := range task.PendingToolCalls {
		task.AppendItem(model.AgentTaskItem{
			TaskID:    task.TaskID,
			RequestID: requestID,
			Role:      model.RoleTool,
			ToolResult: &model.ToolResult{
				FunctionCallID: call.ID,
				Error:          "rejected by user: " + reason,
			},
			Updated: now,
		})
	}
	task.Status = model.StatusCanceled
	task.PendingRequestID = ""
	task.PendingToolCalls = nil

	return &model.RejectedToolResponse{
		SessionID: task.SessionID,
		TaskID:    task.TaskID,
		RequestID: requestID,
		Reason:    reason,
		Status:    task.Status,
	}
}
