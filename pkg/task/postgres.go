package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/arcadeflow/agentserver/pkg/model"
)

// PostgresService persists AgentTask records and the request index in a
// relational store, grounded on the database/sql + pgx driver pattern used
// for SQL task stores in the broader example pack (codeready-toolchain-tarsy).
// The task row stores the full AgentTask as JSON in a single column: the
// task's shape (ordered items, a handful of scalar fields) does not
// benefit from normalization, and every access already goes through the
// Service interface rather than ad hoc SQL.
type PostgresService struct {
	db *sql.DB
}

var _ Service = (*PostgresService)(nil)

// NewPostgresService wraps an already-opened *sql.DB (registered under the
// "pgx" driver name via github.com/jackc/pgx/v5/stdlib). Schema:
//
//	CREATE TABLE agent_tasks (task_id TEXT PRIMARY KEY, user_id TEXT NOT NULL, body JSONB NOT NULL);
//	CREATE TABLE request_index (request_id TEXT PRIMARY KEY, task_id TEXT NOT NULL);
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

func (s *PostgresService) Create(ctx context.Context, t *model.AgentTask) error {
	body, err := json.Marshal(t)
	if err != nil {
		return wrapPersistence(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_tasks (task_id, user_id, body) VALUES ($1, $2, $3)`,
		t.TaskID, t.UserID, body)
	if err != nil {
		return wrapPersistence(err)
	}
	return nil
}

func (s *PostgresService) Get(ctx context.Context, userID, taskID string) (*model.AgentTask, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM agent_tasks WHERE task_id = $1`, taskID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPersistence(err)
	}
	var t model.AgentTask
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, wrapPersistence(err)
	}
	if err := CheckOwnership(&t, userID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresService) Update(ctx context.Context, t *model.AgentTask) error {
	body, err := json.Marshal(t)
	if err != nil {
		return wrapPersistence(err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_tasks SET body = $2 WHERE task_id = $1`, t.TaskID, body)
	if err != nil {
		return wrapPersistence(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresService) IndexRequest(ctx context.Context, requestID, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_index (request_id, task_id) VALUES ($1, $2)
		 ON CONFLICT (request_id) DO UPDATE SET task_id = EXCLUDED.task_id`,
		requestID, taskID)
	if err != nil {
		return wrapPersistence(err)
	}
	return nil
}

func (s *PostgresService) ResolveRequest(ctx context.Context, requestID string) (string, error) {
	var taskID string
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id FROM request_index WHERE request_id = $1`, requestID).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapPersistence(err)
	}
	return taskID, nil
}
