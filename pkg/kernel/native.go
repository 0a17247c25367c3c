package kernel

import (
	"context"
	"fmt"
)

// NativeFunction is one in-process function a NativePlugin exposes,
// grounded on the teacher's tool.CallableTool (Name/Description/Call/
// Schema) but collapsed to a single struct per function rather than one
// type per tool — a native plugin in this system is a named bundle of
// functions, not one tool each.
type NativeFunction struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// NativePlugin is the in-process PluginInstance: a fixed table of
// NativeFunctions, resolved once at construction.
type NativePlugin struct {
	functions map[string]NativeFunction
}

// NewNativePlugin builds a NativePlugin from the given functions. A
// duplicate Name overwrites the earlier entry.
func NewNativePlugin(functions ...NativeFunction) *NativePlugin {
	m := make(map[string]NativeFunction, len(functions))
	for _, f := range functions {
		m[f.Name] = f
	}
	return &NativePlugin{functions: m}
}

func (p *NativePlugin) Signatures() []FunctionSignature {
	out := make([]FunctionSignature, 0, len(p.functions))
	for _, f := range p.functions {
		out = append(out, FunctionSignature{
			FunctionName: f.Name,
			Description:  f.Description,
			Parameters:   f.Parameters,
		})
	}
	return out
}

// Invoke runs the named function's Handler. A handler error is folded
// into an IsError Result rather than returned, matching spec §4.2's
// "failure of a single call propagates as a tool-role item with an
// error payload" — only an unknown function name is a kernel-level
// error (the call never should have been routed here).
func (p *NativePlugin) Invoke(ctx context.Context, functionName string, args map[string]any) (Result, error) {
	f, ok := p.functions[functionName]
	if !ok {
		return Result{}, fmt.Errorf("kernel: native plugin has no function %q", functionName)
	}

	content, err := f.Handler(ctx, args)
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	return Result{Content: content}, nil
}
