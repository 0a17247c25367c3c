package kernel

import (
	"context"
	"testing"

	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoFunction(name string) NativeFunction {
	return NativeFunction{
		Name:        name,
		Description: "echoes its args",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestKernel_InvokeDispatchesToRegisteredPlugin(t *testing.T) {
	k := New()
	k.Register("greeter", NewNativePlugin(echoFunction("hello")))

	res, err := k.Invoke(context.Background(), model.FunctionCall{
		PluginName:   "greeter",
		FunctionName: "hello",
		Arguments:    map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "ok", res.Content)
}

func TestKernel_InvokeUnknownPluginErrors(t *testing.T) {
	k := New()
	_, err := k.Invoke(context.Background(), model.FunctionCall{PluginName: "nope", FunctionName: "x"})
	assert.Error(t, err)
}

func TestKernel_UnregisterRemovesPlugin(t *testing.T) {
	k := New()
	k.Register("greeter", NewNativePlugin(echoFunction("hello")))
	k.Unregister("greeter")

	_, err := k.Invoke(context.Background(), model.FunctionCall{PluginName: "greeter", FunctionName: "hello"})
	assert.Error(t, err)
}

func TestKernel_SignaturesAggregatesAcrossPlugins(t *testing.T) {
	k := New()
	k.Register("greeter", NewNativePlugin(echoFunction("hello"), echoFunction("bye")))
	k.Register("mather", NewNativePlugin(echoFunction("add")))

	sigs := k.Signatures()
	require.Len(t, sigs, 3)

	byPlugin := map[string][]string{}
	for _, s := range sigs {
		byPlugin[s.PluginName] = append(byPlugin[s.PluginName], s.FunctionName)
	}
	assert.ElementsMatch(t, []string{"hello", "bye"}, byPlugin["greeter"])
	assert.ElementsMatch(t, []string{"add"}, byPlugin["mather"])
}

func TestNativePlugin_HandlerErrorBecomesIsErrorResult(t *testing.T) {
	p := NewNativePlugin(NativeFunction{
		Name: "fails",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", assertErr
		},
	})

	res, err := p.Invoke(context.Background(), "fails", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, assertErr.Error(), res.Content)
}

func TestNativePlugin_UnknownFunctionErrors(t *testing.T) {
	p := NewNativePlugin(echoFunction("hello"))
	_, err := p.Invoke(context.Background(), "missing", nil)
	assert.Error(t, err)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

var assertErr = simpleError("handler boom")
