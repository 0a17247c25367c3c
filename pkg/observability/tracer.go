// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// maxPayloadCapture bounds how much of a captured LLM/tool payload is
// kept on a span, to stop a single request from blowing up span size.
const maxPayloadCapture = 2000

// Tracer wraps an OpenTelemetry tracer with span helpers for the shapes
// of work this service instruments: agent runs, LLM calls, tool
// executions, and memory searches.
type Tracer struct {
	tracer          trace.Tracer
	provider        *sdktrace.TracerProvider
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the
// configured remote exporter, feeding the debug inspection API.
func WithDebugExporter(exp *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = exp }
}

// WithCapturePayloads enables recording full LLM/tool payloads as span
// attributes. Off by default since payloads can be large and sensitive.
func WithCapturePayloads(capture bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = capture }
}

// NewTracer builds a Tracer from a TracingConfig, wiring the configured
// exporter (currently OTLP/gRPC; other exporter names in config fall
// back to OTLP since no other exporter library is vendored) and
// registering it as the global TracerProvider.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var options tracerOptions
	for _, opt := range opts {
		opt(&options)
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithHeaders(cfg.Headers),
	}
	if cfg.IsInsecure() {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if cfg.Timeout > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if options.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(options.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Tracer{
		tracer:          tp.Tracer(cfg.ServiceName),
		provider:        tp,
		debugExporter:   options.debugExporter,
		capturePayloads: options.capturePayloads,
	}, nil
}

// Start begins a generic span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartAgentRun begins a span covering one full agent loop turn.
func (t *Tracer) StartAgentRun(ctx context.Context, agentName, agentType, sessionID, userID, model string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String(AttrAgentName, agentName),
		attribute.String("agent.type", agentType),
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
		attribute.String(AttrAgentLLM, model),
	))
}

// StartLLMCall begins a span covering one request to the model provider.
func (t *Tracer) StartLLMCall(ctx context.Context, model string, promptTokens int, temperature, topP float64) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, SpanLLMCall, trace.WithAttributes(
		attribute.String(AttrLLMModel, model),
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Float64("llm.temperature", temperature),
		attribute.Float64("llm.top_p", topP),
	))
}

// StartToolExecution begins a span covering one tool call, whether
// served by a native plugin or a federated MCP server.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName, server, mode string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.String("tool.server", server),
		attribute.String("tool.mode", mode),
	))
}

// StartMemorySearch begins a span covering a memory/context lookup.
func (t *Tracer) StartMemorySearch(ctx context.Context, query string, topK int) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, SpanMemorySearch, trace.WithAttributes(
		attribute.String("memory.query", truncateString(query, maxPayloadCapture)),
		attribute.Int("memory.top_k", topK),
	))
}

// AddLLMUsage records token accounting on an in-flight LLM call span.
func (t *Tracer) AddLLMUsage(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
	)
}

// AddLLMFinishReason records why the model stopped generating.
func (t *Tracer) AddLLMFinishReason(span trace.Span, reason string) {
	span.SetAttributes(attribute.String("llm.finish_reason", reason))
}

// AddPayload attaches an LLM request/response payload to a span, gated
// by capturePayloads since payloads can carry user data.
func (t *Tracer) AddPayload(span trace.Span, kind, payload string) {
	if t == nil || !t.capturePayloads {
		return
	}
	span.SetAttributes(attribute.String("llm."+kind, truncateString(payload, maxPayloadCapture)))
}

// AddToolPayload attaches a tool call's arguments or result to a span,
// gated by capturePayloads.
func (t *Tracer) AddToolPayload(span trace.Span, kind, payload string) {
	if t == nil || !t.capturePayloads {
		return
	}
	span.SetAttributes(attribute.String("tool."+kind, truncateString(payload, maxPayloadCapture)))
}

// RecordError marks a span as failed and records the error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
}

// DebugExporter returns the in-memory span exporter, or nil if one
// wasn't configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTracer returns a named tracer from the global TracerProvider, for
// call sites that only need a plain trace.Tracer rather than the
// domain-specific helpers above.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func noopSpan() trace.Span {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
