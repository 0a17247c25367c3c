package oauth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStorage persists OAuth2 token data against Redis, grounded on
// pkg/task's RedisService pattern. Keys match spec §6's "Persisted
// state layout": "auth:{user_id}:{composite_key}".
type RedisStorage struct {
	client *redis.Client
}

var _ Storage = (*RedisStorage)(nil)

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func authKey(userID, key string) string { return "auth:" + userID + ":" + key }

func (s *RedisStorage) Store(ctx context.Context, userID, key string, data *TokenData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, authKey(userID, key), body, 0).Err()
}

func (s *RedisStorage) Retrieve(ctx context.Context, userID, key string) (*TokenData, error) {
	body, err := s.client.Get(ctx, authKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var data TokenData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *RedisStorage) Delete(ctx context.Context, userID, key string) error {
	return s.client.Del(ctx, authKey(userID, key)).Err()
}
