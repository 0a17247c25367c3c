package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresStorage persists OAuth2 token data relationally, grounded on
// pkg/task's PostgresService pattern. Schema:
//
//	CREATE TABLE oauth_tokens (user_id TEXT NOT NULL, composite_key TEXT NOT NULL, body JSONB NOT NULL, PRIMARY KEY (user_id, composite_key));
type PostgresStorage struct {
	db *sql.DB
}

var _ Storage = (*PostgresStorage)(nil)

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Store(ctx context.Context, userID, key string, data *TokenData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (user_id, composite_key, body) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, composite_key) DO UPDATE SET body = EXCLUDED.body`,
		userID, key, body)
	return err
}

func (s *PostgresStorage) Retrieve(ctx context.Context, userID, key string) (*TokenData, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM oauth_tokens WHERE user_id = $1 AND composite_key = $2`, userID, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *PostgresStorage) Delete(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = $1 AND composite_key = $2`, userID, key)
	return err
}
