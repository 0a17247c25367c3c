package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentLLM        = "agent.llm"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size_bytes"

	// AttrEventID correlates a span with a task's request_id, for
	// looking up a task's trace from the debug exporter.
	AttrEventID = "event.id"

	SpanAgentCall     = "agent.call"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanMemoryLookup  = "agent.memory_lookup"

	// SpanAgentRun, SpanLLMCall, and SpanMemorySearch are the richer,
	// multi-attribute span names Tracer's Start* helpers use; they
	// coexist with the plainer SpanAgentCall/SpanLLMRequest/
	// SpanMemoryLookup names above, under which no code in this module
	// currently starts a span.
	SpanAgentRun     = "agent.run"
	SpanLLMCall      = "llm.call"
	SpanMemorySearch = "memory.search"
	SpanHTTPRequest  = "http.request"

	DefaultServiceName  = "agentserver"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
