package llm

import (
	"context"
	"testing"

	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedProvider_NonStreaming(t *testing.T) {
	p := &ScriptedProvider{Turns: []Response{{Text: "4", FinishReason: FinishStop}}}
	var got *Response
	for r, err := range p.GenerateContent(context.Background(), &Request{}, false) {
		require.NoError(t, err)
		got = r
	}
	require.NotNil(t, got)
	assert.Equal(t, "4", got.Text)
	assert.False(t, got.Partial)
}

func TestScriptedProvider_Streaming_EndsWithAggregatedFinal(t *testing.T) {
	p := &ScriptedProvider{Turns: []Response{{Text: "hello", FinishReason: FinishStop}}}
	var results []*Response
	for r, err := range p.GenerateContent(context.Background(), &Request{}, true) {
		require.NoError(t, err)
		results = append(results, r)
	}
	require.NotEmpty(t, results)
	last := results[len(results)-1]
	assert.False(t, last.Partial)
	assert.Equal(t, "hello", last.Text)
	for _, r := range results[:len(results)-1] {
		assert.True(t, r.Partial)
	}
}

func TestScriptedProvider_ToolCallTurn(t *testing.T) {
	fc := model.FunctionCall{ID: "call-1", PluginName: "sensitive_plugin", FunctionName: "delete_user_data"}
	p := &ScriptedProvider{Turns: []Response{{ToolCalls: []model.FunctionCall{fc}, FinishReason: FinishToolCalls}}}
	var got *Response
	for r, err := range p.GenerateContent(context.Background(), &Request{}, false) {
		require.NoError(t, err)
		got = r
	}
	require.True(t, got.HasToolCalls())
	assert.Equal(t, "sensitive_plugin-delete_user_data", got.ToolCalls[0].ToolID())
}
