package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentTask_AppendItem_MonotonicTimestamps(t *testing.T) {
	task := &AgentTask{TaskID: "t1", UserID: "u1"}

	early := time.Now().UTC().Add(-time.Hour)
	task.AppendItem(AgentTaskItem{Role: RoleUser, Text: ptr(TextItem("hi")), Updated: early})
	require.Len(t, task.Items, 1)
	assert.Equal(t, early, task.LastUpdatedAt)

	// A second append carrying an earlier timestamp must not move
	// LastUpdatedAt backwards.
	earlier := early.Add(-time.Minute)
	task.AppendItem(AgentTaskItem{Role: RoleAssistant, Text: ptr(TextItem("hello")), Updated: earlier})
	require.Len(t, task.Items, 2)
	assert.Equal(t, early, task.LastUpdatedAt)
	assert.True(t, !task.Items[1].Updated.Before(task.Items[0].Updated))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestFunctionCall_ToolID(t *testing.T) {
	fc := FunctionCall{PluginName: "sensitive_plugin", FunctionName: "delete_user_data"}
	assert.Equal(t, "sensitive_plugin-delete_user_data", fc.ToolID())
}

func ptr[T any](v T) *T { return &v }
