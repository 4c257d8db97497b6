package storage

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestTaskRepositoryCreate(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewTaskRepository(sdb)

	task := &AnalysisTask{
		ID:          uuid.New(),
		UserID:      "u1",
		TaskType:    string(TaskStock),
		Status:      TaskPending,
		Priority:    100,
		InputParams: json.RawMessage(`{"ticker":"AAPL"}`),
	}

	mock.ExpectExec("INSERT INTO analysis_tasks").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryGetNotFound(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewTaskRepository(sdb)

	id := uuid.New()
	mock.ExpectQuery("SELECT \\* FROM analysis_tasks WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	task, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, task)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryMarkProcessing(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewTaskRepository(sdb)

	id := uuid.New()
	mock.ExpectExec("UPDATE analysis_tasks").
		WithArgs(id, TaskProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkProcessing(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryUpdateProgressTruncatesStep(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewTaskRepository(sdb)

	id := uuid.New()
	longStep := make([]byte, 2000)
	for i := range longStep {
		longStep[i] = 'x'
	}

	mock.ExpectExec("UPDATE analysis_tasks").
		WithArgs(id, 30, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProgress(context.Background(), id, 30, string(longStep)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncateRespects1000And5000CharBounds(t *testing.T) {
	short := "fetching market data"
	require.Equal(t, short, truncate(short, 1000))

	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(string(long), 1000)
	require.Len(t, got, 1000)
	require.True(t, got[997:] == "...")

	gotErr := truncate(string(make([]byte, 6000)), 5000)
	require.Len(t, gotErr, 5000)
	require.True(t, gotErr[4997:] == "...")
}

func TestTaskRepositoryCompleteAndFail(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewTaskRepository(sdb)

	id := uuid.New()
	mock.ExpectExec("UPDATE analysis_tasks").
		WithArgs(id, TaskCompleted, "Analysis completed successfully", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Complete(context.Background(), id, json.RawMessage(`{}`), nil, "", "Analysis completed successfully"))

	mock.ExpectExec("UPDATE analysis_tasks").
		WithArgs(id, TaskFailed, "Task failed: insufficient data", "insufficient data").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Fail(context.Background(), id, "Task failed: insufficient data", "insufficient data"))

	require.NoError(t, mock.ExpectationsWereMet())
}
