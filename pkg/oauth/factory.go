package oauth

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend selects a Storage implementation, mirroring pkg/task's
// backend-selector factory pattern.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// NewStorageFromConfig constructs a Storage for the given backend.
func NewStorageFromConfig(backend Backend, db *sql.DB, rdb *redis.Client) (Storage, error) {
	switch backend {
	case "", BackendMemory:
		return NewInMemoryStorage(), nil
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("oauth: postgres backend requires a *sql.DB")
		}
		return NewPostgresStorage(db), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("oauth: redis backend requires a *redis.Client")
		}
		return NewRedisStorage(rdb), nil
	default:
		return nil, fmt.Errorf("oauth: unknown backend %q", backend)
	}
}
