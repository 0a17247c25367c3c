package task

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/redis/go-redis/v9"
)

// RedisService persists AgentTask records and the request index against
// Redis, grounded on the redis/go-redis/v9 usage pattern from
// goadesign-goa-ai. Keys match spec §6's "Persisted state layout" exactly:
// "task:{task_id}" and "request_index:{request_id}".
type RedisService struct {
	client *redis.Client
}

var _ Service = (*RedisService)(nil)

func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client}
}

func taskKey(taskID string) string      { return "task:" + taskID }
func requestKey(requestID string) string { return "request_index:" + requestID }

func (s *RedisService) Create(ctx context.Context, t *model.AgentTask) error {
	body, err := json.Marshal(t)
	if err != nil {
		return wrapPersistence(err)
	}
	if err := s.client.Set(ctx, taskKey(t.TaskID), body, 0).Err(); err != nil {
		return wrapPersistence(err)
	}
	return nil
}

func (s *RedisService) Get(ctx context.Context, userID, taskID string) (*model.AgentTask, error) {
	body, err := s.client.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
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

func (s *RedisService) Update(ctx context.Context, t *model.AgentTask) error {
	body, err := json.Marshal(t)
	if err != nil {
		return wrapPersistence(err)
	}
	// Mode "XX": only set if the key already exists, matching Postgres's
	// "rows affected == 0 -> not found" semantics.
	res := s.client.SetArgs(ctx, taskKey(t.TaskID), body, redis.SetArgs{Mode: "XX"})
	if err := res.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return wrapPersistence(err)
	}
	return nil
}

func (s *RedisService) IndexRequest(ctx context.Context, requestID, taskID string) error {
	if err := s.client.Set(ctx, requestKey(requestID), taskID, 0).Err(); err != nil {
		return wrapPersistence(err)
	}
	return nil
}

func (s *RedisService) ResolveRequest(ctx context.Context, requestID string) (string, error) {
	taskID, err := s.client.Get(ctx, requestKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapPersistence(err)
	}
	return taskID, nil
}
