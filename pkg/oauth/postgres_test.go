package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStorage(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStorage) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresStorage(db)
}

func TestPostgresStorage_Store(t *testing.T) {
	db, mock, s := newMockPostgresStorage(t)
	defer db.Close()

	data := &TokenData{AccessToken: "at", Scopes: []string{"read"}, ExpiresAt: time.Now().Add(time.Hour)}
	mock.ExpectExec("INSERT INTO oauth_tokens").
		WithArgs("alice", "arcade:read", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Store(context.Background(), "alice", "arcade:read", data))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Retrieve(t *testing.T) {
	db, mock, s := newMockPostgresStorage(t)
	defer db.Close()

	data := &TokenData{AccessToken: "at", Scopes: []string{"read"}, ExpiresAt: time.Now().Add(time.Hour)}
	body, err := json.Marshal(data)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT body FROM oauth_tokens WHERE user_id").
		WithArgs("alice", "arcade:read").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	got, err := s.Retrieve(context.Background(), "alice", "arcade:read")
	require.NoError(t, err)
	assert.Equal(t, "at", got.AccessToken)
}

func TestPostgresStorage_Retrieve_NotFound(t *testing.T) {
	db, mock, s := newMockPostgresStorage(t)
	defer db.Close()

	mock.ExpectQuery("SELECT body FROM oauth_tokens WHERE user_id").
		WithArgs("alice", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Retrieve(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStorage_Delete(t *testing.T) {
	db, mock, s := newMockPostgresStorage(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM oauth_tokens WHERE user_id").
		WithArgs("alice", "arcade:read").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), "alice", "arcade:read"))
	require.NoError(t, mock.ExpectationsWereMet())
}
