package task

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend selects a Service implementation, per spec §1's "specific
// persistence backends are pluggable" and §6's env-var backend selector.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// NewServiceFromConfig constructs a Service for the given backend. db/rdb
// are only consulted for the matching backend and may be nil otherwise,
// mirroring the teacher's NewTaskStoreFromConfig dispatch-by-backend-name
// pattern in pkg/task/factory.go.
func NewServiceFromConfig(backend Backend, db *sql.DB, rdb *redis.Client) (Service, error) {
	switch backend {
	case "", BackendMemory:
		return NewInMemoryService(), nil
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("task: postgres backend requires a *sql.DB")
		}
		return NewPostgresService(db), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("task: redis backend requires a *redis.Client")
		}
		return NewRedisService(rdb), nil
	default:
		return nil, fmt.Errorf("task: unknown backend %q", backend)
	}
}
