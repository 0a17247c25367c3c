// Package task persists AgentTask records and maintains the
// request_id → task_id index that makes resume idempotent.
//
// Implementations: InMemoryService (dev/test), PostgresService,
// RedisService. All three satisfy the same Service interface so the
// request handler never branches on backend.
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcadeflow/agentserver/pkg/model"
)

// Error is a task-related error, carrying a Code the transport layer maps
// to an HTTP status (ownership -> 403, not-found -> 404, persistence -> 5xx).
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

const (
	CodeNotFound     = "task_not_found"
	CodeNotAuthor    = "task_not_authorized"
	CodeTerminal     = "task_terminal"
	CodeNotPaused    = "task_not_paused"
	CodeStalePending = "task_stale_pending_request"
	CodePersistence  = "task_persistence_error"
)

var (
	ErrNotFound  = &Error{Code: CodeNotFound, Message: "task not found"}
	ErrNotOwner  = &Error{Code: CodeNotAuthor, Message: "task not owned by caller"}
	ErrTerminal  = &Error{Code: CodeTerminal, Message: "task is in a terminal state"}
	ErrNotPaused = &Error{Code: CodeNotPaused, Message: "task is not paused"}
	ErrStale     = &Error{Code: CodeStalePending, Message: "request_id does not match the task's pending request"}
)

func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodePersistence, Message: "persistence operation failed", Err: err}
}

// Service persists AgentTask records and the request_id -> task_id index.
//
// Every read/write path enforces the ownership invariant: callers pass the
// requesting user_id, and implementations return ErrNotOwner when it
// mismatches the stored task's UserID, never leaking the task to the wrong
// caller.
type Service interface {
	// Create persists a brand-new task owned by userID.
	Create(ctx context.Context, task *model.AgentTask) error

	// Get loads a task by ID, verifying ownership against userID.
	Get(ctx context.Context, userID, taskID string) (*model.AgentTask, error)

	// Update persists task's current state. Callers must hold the
	// per-task_id lock (see internal/keylock) across the Get...Update
	// sequence so read-modify-write is serialized.
	Update(ctx context.Context, task *model.AgentTask) error

	// IndexRequest records that requestID belongs to taskID, so Resume
	// can look up the owning task by request_id alone.
	IndexRequest(ctx context.Context, requestID, taskID string) error

	// ResolveRequest returns the task_id indexed under requestID.
	ResolveRequest(ctx context.Context, requestID string) (string, error)
}

// NewTask constructs a fresh AgentTask in StatusRunning, per §4.1 step 3's
// "else" branch (no task_id supplied).
func NewTask(taskID, sessionID, userID string) *model.AgentTask {
	return &model.AgentTask{
		TaskID:    taskID,
		SessionID: sessionID,
		UserID:    userID,
		Status:    "Running",
	}
}

// CheckOwnership enforces the invariant "stored.user_id == auth.user_id"
// from spec §3, returning ErrNotOwner on mismatch.
func CheckOwnership(t *model.AgentTask, userID string) error {
	if t == nil {
		return ErrNotFound
	}
	if t.UserID != userID {
		return ErrNotOwner
	}
	return nil
}

// ValidateResume enforces spec §4.1 resume step 2: the task must be Paused
// and requestID must match the stored pending request.
func ValidateResume(t *model.AgentTask, requestID string) error {
	if t.Status != "Paused" {
		return ErrNotPaused
	}
	if t.PendingRequestID != requestID {
		return ErrStale
	}
	if len(t.PendingToolCalls) == 0 {
		// Invariant from §3: a Paused task must carry non-empty pending_tool_calls.
		return errors.New("task: invariant violated: paused task has no pending tool calls")
	}
	return nil
}
