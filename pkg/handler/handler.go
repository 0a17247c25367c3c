// Package handler implements the request handler (spec §4.1): the single
// entry point for every user interaction, composing authentication,
// per-user MCP discovery, task persistence, the HITL gate, and the agent
// tool-call loop into the four public operations (invoke, invoke_stream,
// resume, resume_stream).
//
// Grounded on the teacher's v2/server.Executor composition (one struct
// holding every subsystem a request touches) and its Execute() method
// shape, generalized away from A2A protocol framing: this package
// returns plain Go values (*model.AgentResponse, *model.HitlResponse,
// ...) and leaves HTTP/gRPC/SSE framing to pkg/transport.
package handler

import (
	"context"
	"fmt"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/arcadeflow/agentserver/pkg/agentloop"
	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/hitl"
	"github.com/arcadeflow/agentserver/pkg/kernel"
	"github.com/arcadeflow/agentserver/pkg/llm"
	"github.com/arcadeflow/agentserver/pkg/logger"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/session"
	"github.com/arcadeflow/agentserver/pkg/task"
	"github.com/google/uuid"
)

// Kind is the error taxonomy spec §7 names (kinds, not type names); a
// transport layer maps each Kind to its own status code.
type Kind string

const (
	KindAuthentication Kind = "authentication" // 401
	KindAuthorization  Kind = "authorization"  // 403
	KindNotFound       Kind = "not_found"      // 404
	KindConflict       Kind = "conflict"       // 409, stale resume request_id
	KindPersistence    Kind = "persistence"    // 5xx, retryable
	KindUpstream       Kind = "upstream"       // 502, LLM failure
)

// Error is the handler-level error a transport inspects to pick a
// status code; Message is safe to show the caller (spec §7: "never leak
// token contents or JWKS material").
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NativeTool is one in-process function every request's kernel carries,
// independent of any per-user MCP discovery.
type NativeTool struct {
	PluginName string
	Function   kernel.NativeFunction
}

// Config is the static, agent-level configuration a Handler composes
// over (spec §6's agent configuration file: model, system_prompt,
// mcp_servers, plugins).
type Config struct {
	MCPServers  []mcpregistry.ServerConfig
	NativeTools []NativeTool
	MaxRounds   int
	URLTemplate hitl.URLTemplate
}

// Handler is the composition root for one agent's request surface.
type Handler struct {
	cfg Config

	tasks      task.Service
	cache      *session.Cache
	registry   *mcpregistry.Registry
	gate       *hitl.Gate
	resolver   *oauth.Resolver
	refresher  oauth.Refresher
	authorizer auth.Authorizer
	provider   llm.Provider

	taskLocks keylock.Map[string]
	newID     func() string
}

// Deps bundles the shared subsystems a Handler composes; each is also
// independently wired into other Handlers in a multi-agent deployment
// (the session cache, catalog, and oauth resolver are process-wide, not
// per-agent).
type Deps struct {
	Tasks      task.Service
	Cache      *session.Cache
	Registry   *mcpregistry.Registry
	Catalog    *catalog.Catalog
	Resolver   *oauth.Resolver
	// Refresher builds authorization URLs for AuthChallengeResponse
	// entries (spec §4.7.2's PKCE-bearing auth_url). In composition this
	// is the same *oauth.Broker instance the Resolver's internal
	// refresher wraps.
	Refresher  oauth.Refresher
	Authorizer auth.Authorizer
	Provider   llm.Provider
}

// New builds a Handler. maxRounds <= 0 uses agentloop.DefaultMaxRounds;
// an empty URLTemplate uses hitl.DefaultURLTemplate.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = agentloop.DefaultMaxRounds
	}
	if cfg.URLTemplate == (hitl.URLTemplate{}) {
		cfg.URLTemplate = hitl.DefaultURLTemplate
	}
	return &Handler{
		cfg:        cfg,
		tasks:      deps.Tasks,
		cache:      deps.Cache,
		registry:   deps.Registry,
		gate:       hitl.NewGate(deps.Catalog),
		resolver:   deps.Resolver,
		refresher:  deps.Refresher,
		authorizer: deps.Authorizer,
		provider:   deps.Provider,
		newID:      uuid.NewString,
	}
}

// Invoke implements spec §4.1's unary invoke algorithm. The returned
// value is one of *model.AgentResponse, *model.HitlResponse, or
// *model.AuthChallengeResponse.
func (h *Handler) Invoke(ctx context.Context, authHeader string, msg model.UserMessage) (any, error) {
	userID, err := h.authenticate(ctx, authHeader)
	if err != nil {
		return nil, err
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = h.newID()
	}

	if challenge, err := h.ensureDiscovery(ctx, userID, sessionID); err != nil {
		return nil, err
	} else if challenge != nil {
		return challenge, nil
	}

	taskID := msg.TaskID
	var t *model.AgentTask
	var result *agentloop.Result
	var runErr error
	requestID := h.newID()
	ctx = logger.ContextWithIDs(ctx, logger.IDs{SessionID: sessionID, TaskID: taskID, RequestID: requestID, UserID: userID})

	lockKey := taskID
	if lockKey == "" {
		// A brand-new task has no ID yet to lock on; generate one now so
		// the create-then-mutate sequence below is still serialized
		// against any concurrent request racing to reuse it (it can't,
		// since only this call knows the ID, but the lock keeps the
		// code path identical to the existing-task case).
		taskID = h.newID()
		lockKey = taskID
		ctx = logger.ContextWithIDs(ctx, logger.IDs{SessionID: sessionID, TaskID: taskID, RequestID: requestID, UserID: userID})
	}

	h.taskLocks.WithLock(lockKey, func() {
		if msg.TaskID != "" {
			t, err = h.tasks.Get(ctx, userID, msg.TaskID)
		} else {
			t = task.NewTask(taskID, sessionID, userID)
			err = h.tasks.Create(ctx, t)
		}
		if err != nil {
			return
		}
		if t.Status == model.StatusPaused {
			// Spec §3: pending_tool_calls is populated only while
			// status=Paused; invoke must not run another round atop that
			// state. Only resume (approve/reject) may advance it.
			logger.FromContext(ctx).Warn("invoke rejected: task is paused awaiting HITL resolution")
			err = &Error{Kind: KindConflict, Message: "task is paused awaiting HITL resolution; use resume instead of invoke"}
			return
		}

		for _, item := range msg.Items {
			item := item
			t.AppendItem(model.AgentTaskItem{TaskID: t.TaskID, RequestID: requestID, Role: model.RoleUser, Text: &item})
		}
		if err = h.tasks.Update(ctx, t); err != nil {
			return
		}
		if err = h.tasks.IndexRequest(ctx, requestID, t.TaskID); err != nil {
			return
		}

		loop := h.buildLoop(userID, sessionID)
		result, runErr = loop.Run(ctx, t, requestID)
	})

	if err != nil {
		return nil, mapTaskErr(err)
	}
	return h.finishRound(ctx, t, requestID, result, runErr)
}

// InvokeStream is Invoke's streaming counterpart: partial yields text
// fragments as they arrive (spec §6 SSE "partial" events); the final
// return value is the same terminal payload Invoke would have returned.
func (h *Handler) InvokeStream(ctx context.Context, authHeader string, msg model.UserMessage, partial func(text string) bool) (any, error) {
	userID, err := h.authenticate(ctx, authHeader)
	if err != nil {
		return nil, err
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = h.newID()
	}

	if challenge, err := h.ensureDiscovery(ctx, userID, sessionID); err != nil {
		return nil, err
	} else if challenge != nil {
		return challenge, nil
	}

	taskID := msg.TaskID
	if taskID == "" {
		taskID = h.newID()
	}
	requestID := h.newID()
	ctx = logger.ContextWithIDs(ctx, logger.IDs{SessionID: sessionID, TaskID: taskID, RequestID: requestID, UserID: userID})

	var t *model.AgentTask
	var result *agentloop.Result
	var runErr error

	h.taskLocks.WithLock(taskID, func() {
		if msg.TaskID != "" {
			t, err = h.tasks.Get(ctx, userID, msg.TaskID)
		} else {
			t = task.NewTask(taskID, sessionID, userID)
			err = h.tasks.Create(ctx, t)
		}
		if err != nil {
			return
		}
		if t.Status == model.StatusPaused {
			// Spec §3: pending_tool_calls is populated only while
			// status=Paused; invoke must not run another round atop that
			// state. Only resume (approve/reject) may advance it.
			logger.FromContext(ctx).Warn("invoke_stream rejected: task is paused awaiting HITL resolution")
			err = &Error{Kind: KindConflict, Message: "task is paused awaiting HITL resolution; use resume instead of invoke"}
			return
		}

		for _, item := range msg.Items {
			item := item
			t.AppendItem(model.AgentTaskItem{TaskID: t.TaskID, RequestID: requestID, Role: model.RoleUser, Text: &item})
		}
		if err = h.tasks.Update(ctx, t); err != nil {
			return
		}
		if err = h.tasks.IndexRequest(ctx, requestID, t.TaskID); err != nil {
			return
		}

		loop := h.buildLoop(userID, sessionID)
		result, runErr = loop.RunStreaming(ctx, t, requestID, partial)
	})

	if err != nil {
		return nil, mapTaskErr(err)
	}
	if result != nil && result.Outcome == agentloop.OutcomeCancelled {
		return nil, nil
	}
	return h.finishRound(ctx, t, requestID, result, runErr)
}

// Resume implements spec §4.1's resume algorithm.
func (h *Handler) Resume(ctx context.Context, authHeader, requestID string, decision model.ResumeDecision, reason string) (any, error) {
	userID, err := h.authenticate(ctx, authHeader)
	if err != nil {
		return nil, err
	}

	taskID, err := h.tasks.ResolveRequest(ctx, requestID)
	if err != nil {
		return nil, mapTaskErr(err)
	}
	ctx = logger.ContextWithIDs(ctx, logger.IDs{TaskID: taskID, RequestID: requestID, UserID: userID})

	var out any
	var outErr error

	h.taskLocks.WithLock(taskID, func() {
		t, err := h.tasks.Get(ctx, userID, taskID)
		if err != nil {
			outErr = mapTaskErr(err)
			return
		}

		if verr := task.ValidateResume(t, requestID); verr != nil {
			out, outErr = h.idempotentOrError(t, requestID, verr)
			return
		}

		if decision == model.DecisionReject {
			resp := hitl.ApplyRejection(t, requestID, reason)
			if err := h.tasks.Update(ctx, t); err != nil {
				outErr = mapTaskErr(err)
				return
			}
			logger.FromContext(ctx).Info("task resumed with rejection", "reason", reason)
			out = resp
			return
		}

		loop := h.buildLoop(userID, t.SessionID)
		result, runErr := loop.Resume(ctx, t, requestID)
		out, outErr = h.finishRound(ctx, t, requestID, result, runErr)
	})

	return out, outErr
}

// ResumeStream is Resume's streaming counterpart for the approve path;
// a reject decision has no text to stream and behaves like Resume.
func (h *Handler) ResumeStream(ctx context.Context, authHeader, requestID string, decision model.ResumeDecision, reason string, partial func(text string) bool) (any, error) {
	if decision == model.DecisionReject {
		return h.Resume(ctx, authHeader, requestID, decision, reason)
	}

	userID, err := h.authenticate(ctx, authHeader)
	if err != nil {
		return nil, err
	}

	taskID, err := h.tasks.ResolveRequest(ctx, requestID)
	if err != nil {
		return nil, mapTaskErr(err)
	}

	var out any
	var outErr error

	h.taskLocks.WithLock(taskID, func() {
		t, err := h.tasks.Get(ctx, userID, taskID)
		if err != nil {
			outErr = mapTaskErr(err)
			return
		}

		if verr := task.ValidateResume(t, requestID); verr != nil {
			out, outErr = h.idempotentOrError(t, requestID, verr)
			return
		}

		loop := h.buildLoop(userID, t.SessionID)
		result, runErr := loop.ResumeStreaming(ctx, t, requestID, partial)
		out, outErr = h.finishRound(ctx, t, requestID, result, runErr)
	})

	return out, outErr
}

func (h *Handler) authenticate(ctx context.Context, authHeader string) (string, error) {
	userID, err := h.authorizer.AuthorizeRequest(ctx, authHeader)
	if err != nil {
		return "", &Error{Kind: KindAuthentication, Message: "not authenticated", Err: err}
	}
	return userID, nil
}

// ensureDiscovery runs MCP discovery for (userID, sessionID) and, if any
// server requires an OAuth challenge, builds the short-circuit
// AuthChallengeResponse spec §4.1 step 2 calls for.
func (h *Handler) ensureDiscovery(ctx context.Context, userID, sessionID string) (*model.AuthChallengeResponse, error) {
	challenges, err := h.registry.DiscoverAndMaterialize(ctx, userID, sessionID, h.cfg.MCPServers)
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Message: "discovery failed", Err: err}
	}
	if len(challenges) == 0 {
		return nil, nil
	}

	resp := &model.AuthChallengeResponse{SessionID: sessionID, RequestID: h.newID()}
	for _, c := range challenges {
		flowID := h.newID()
		oauth.RegisterFlow(flowID, oauth.PendingFlow{
			UserID:     userID,
			SessionID:  sessionID,
			ServerName: c.ServerName,
			AuthServer: c.AuthServer,
			Scopes:     c.Scopes,
		})
		resp.Challenges = append(resp.Challenges, model.AuthChallenge{
			Server:  c.ServerName,
			AuthURL: h.refresher.AuthorizationURL(c.AuthServer, flowID, c.Scopes, ""),
		})
	}
	// No task exists yet at this point in the algorithm (spec §4.1 step 2
	// precedes step 3's identity resolution), so there is nothing to
	// resume: the client simply re-submits the original invoke once every
	// challenge's auth_url flow completes.
	resp.ResumeURL = ""
	return resp, nil
}

// finishRound applies the remainder of spec §4.1 steps 6-8 to an
// agentloop outcome: persist on success, classify on failure.
func (h *Handler) finishRound(ctx context.Context, t *model.AgentTask, requestID string, result *agentloop.Result, runErr error) (any, error) {
	if runErr != nil {
		// Per spec §7: "LLM error: task remains in Running state"; the
		// mutations the loop made in memory this round are discarded by
		// simply not persisting them.
		logger.FromContext(ctx).Error("agent loop failed", "error", runErr)
		return nil, &Error{Kind: KindUpstream, Message: "agent loop failed", Err: runErr}
	}

	switch result.Outcome {
	case agentloop.OutcomeCompleted:
		if err := h.tasks.Update(ctx, t); err != nil {
			return nil, &Error{Kind: KindPersistence, Message: "failed to persist completed task", Err: err}
		}
		logger.FromContext(ctx).Info("round completed", "total_tokens", result.Usage.TotalTokens)
		return &model.AgentResponse{
			SessionID:  t.SessionID,
			TaskID:     t.TaskID,
			RequestID:  requestID,
			Output:     result.Output,
			TokenUsage: result.Usage,
			Status:     t.Status,
		}, nil
	case agentloop.OutcomePaused:
		if err := h.tasks.Update(ctx, t); err != nil {
			return nil, &Error{Kind: KindPersistence, Message: "failed to persist paused task", Err: err}
		}
		logger.FromContext(ctx).Info("round paused for HITL approval", "tool_calls", len(result.ToolCalls))
		return hitl.BuildHitlResponse(t.SessionID, t.TaskID, requestID, result.ToolCalls, h.cfg.URLTemplate), nil
	default:
		return nil, &Error{Kind: KindUpstream, Message: "agent loop cancelled"}
	}
}

// idempotentOrError implements spec §4.1 resume step 2's "if already
// advanced, return the current state idempotently (no re-execution)".
func (h *Handler) idempotentOrError(t *model.AgentTask, requestID string, verr error) (any, error) {
	if t.Status.IsTerminal() && t.PendingRequestID == "" {
		switch t.Status {
		case model.StatusCompleted:
			return h.agentResponseFromTask(t, requestID), nil
		case model.StatusCanceled:
			return &model.RejectedToolResponse{SessionID: t.SessionID, TaskID: t.TaskID, RequestID: requestID, Status: t.Status}, nil
		}
	}
	if t.Status == model.StatusPaused && t.PendingRequestID == requestID {
		// ValidateResume failed for another reason (e.g. empty pending
		// calls, an invariant violation) -- surface as a conflict rather
		// than pretending it succeeded.
		return nil, &Error{Kind: KindConflict, Message: "resume precondition failed", Err: verr}
	}
	return nil, &Error{Kind: KindConflict, Message: "request_id does not match the task's current pending request", Err: verr}
}

// agentResponseFromTask reconstructs the terminal AgentResponse for a
// task that has already completed, used only by the idempotent-resume path.
func (h *Handler) agentResponseFromTask(t *model.AgentTask, requestID string) *model.AgentResponse {
	var output string
	for i := len(t.Items) - 1; i >= 0; i-- {
		if t.Items[i].Role == model.RoleAssistant && t.Items[i].Text != nil {
			output = t.Items[i].Text.Text
			break
		}
	}
	return &model.AgentResponse{
		SessionID: t.SessionID,
		TaskID:    t.TaskID,
		RequestID: requestID,
		Output:    output,
		Status:    t.Status,
	}
}

// buildLoop constructs the per-request agentloop.Loop: a fresh kernel
// holding the agent's fixed native tools plus one MCP plugin per server
// already discovered for (userID, sessionID), per spec §4.3's "Plugin
// instantiation" (plugin objects built from cached metadata only, never
// reaching across the network during construction).
func (h *Handler) buildLoop(userID, sessionID string) *agentloop.Loop {
	return agentloop.New(h.provider, h.buildKernel(userID, sessionID), h.gate, h.cfg.MaxRounds)
}

func (h *Handler) buildKernel(userID, sessionID string) *kernel.Kernel {
	k := kernel.New()

	byPlugin := make(map[string][]kernel.NativeFunction)
	var order []string
	for _, nt := range h.cfg.NativeTools {
		if _, seen := byPlugin[nt.PluginName]; !seen {
			order = append(order, nt.PluginName)
		}
		byPlugin[nt.PluginName] = append(byPlugin[nt.PluginName], nt.Function)
	}
	for _, pluginName := range order {
		k.Register(pluginName, kernel.NewNativePlugin(byPlugin[pluginName]...))
	}

	entry, ok := h.cache.Get(userID, sessionID)
	if !ok {
		return k
	}

	for _, srv := range h.cfg.MCPServers {
		disc, ok := entry.Servers[srv.Name]
		if !ok || len(disc.Tools) == 0 {
			continue
		}
		srv := srv
		resolveHeaders := func(ctx context.Context) (map[string]string, error) {
			if srv.AuthServer == "" {
				return srv.Headers, nil
			}
			header, err := h.resolver.AuthHeader(ctx, userID, oauth.ServerAuthConfig{
				ServerName: srv.Name,
				AuthServer: srv.AuthServer,
				Scopes:     srv.Scopes,
			})
			if err != nil {
				return nil, err
			}
			return map[string]string{"Authorization": header}, nil
		}
		k.Register("mcp_"+srv.Name, kernel.NewMCPPlugin(srv.Name, srv.ClientConfig(), disc.Tools, userID, sessionID, resolveHeaders))
	}

	return k
}

func mapTaskErr(err error) error {
	if he, ok := err.(*Error); ok {
		return he
	}
	var te *task.Error
	if !asTaskError(err, &te) {
		return &Error{Kind: KindPersistence, Message: "task operation failed", Err: err}
	}
	switch te.Code {
	case task.CodeNotFound, task.CodeStalePending:
		return &Error{Kind: KindNotFound, Message: te.Message, Err: te}
	case task.CodeNotAuthor:
		return &Error{Kind: KindAuthorization, Message: te.Message, Err: te}
	case task.CodeTerminal, task.CodeNotPaused:
		return &Error{Kind: KindConflict, Message: te.Message, Err: te}
	default:
		return &Error{Kind: KindPersistence, Message: te.Message, Err: te}
	}
}

func asTaskError(err error, target **task.Error) bool {
	te, ok := err.(*task.Error)
	if !ok {
		return false
	}
	*target = te
	return true
}
