package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresService(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresService) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresService(db)
}

func TestPostgresService_Create(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	tsk := NewTask("t1", "s1", "alice")
	mock.ExpectExec("INSERT INTO agent_tasks").
		WithArgs(tsk.TaskID, tsk.UserID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Create(context.Background(), tsk))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_Create_DatabaseError(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO agent_tasks").
		WillReturnError(errors.New("connection refused"))

	err := s.Create(context.Background(), NewTask("t1", "s1", "alice"))
	var taskErr *Error
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, CodePersistence, taskErr.Code)
}

func TestPostgresService_Get(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	tsk := NewTask("t1", "s1", "alice")
	body, err := json.Marshal(tsk)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT body FROM agent_tasks WHERE task_id").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	got, err := s.Get(context.Background(), "alice", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TaskID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresService_Get_NotFound(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	mock.ExpectQuery("SELECT body FROM agent_tasks WHERE task_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresService_Get_WrongOwner(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	tsk := NewTask("t1", "s1", "alice")
	body, err := json.Marshal(tsk)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT body FROM agent_tasks WHERE task_id").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	_, err = s.Get(context.Background(), "bob", "t1")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestPostgresService_Update(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	tsk := NewTask("t1", "s1", "alice")
	mock.ExpectExec("UPDATE agent_tasks SET body").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Update(context.Background(), tsk))
}

func TestPostgresService_Update_NotFound(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	mock.ExpectExec("UPDATE agent_tasks SET body").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), NewTask("ghost", "s1", "alice"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresService_IndexAndResolveRequest(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO request_index").
		WithArgs("r1", "t1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.IndexRequest(context.Background(), "r1", "t1"))

	mock.ExpectQuery("SELECT task_id FROM request_index WHERE request_id").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow("t1"))

	got, err := s.ResolveRequest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)
}

func TestPostgresService_ResolveRequest_NotFound(t *testing.T) {
	db, mock, s := newMockPostgresService(t)
	defer db.Close()

	mock.ExpectQuery("SELECT task_id FROM request_index WHERE request_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.ResolveRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
