package taskengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alphagbm/analysiscore/internal/logging"
	"github.com/alphagbm/analysiscore/internal/storage"
)

func testLogger() *logging.Logger {
	return logging.New("taskengine-test", "error", "text")
}

func newTestEngine(t *testing.T) (*Engine, *fakeTaskStore) {
	t.Helper()
	tasks := newFakeTaskStore()
	e := New(tasks, newFakeDailyCacheStore(), &fakeStockHistoryStore{}, &fakeOptionsHistoryStore{}, nil, nil, testLogger(), 1)
	return e, tasks
}

func TestCreateTaskRejectsOptionAnalysisMissingExpiryDate(t *testing.T) {
	e, tasks := newTestEngine(t)

	_, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskOption,
		InputParams: map[string]any{"symbol": "AAPL"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expiry_date")
	require.Empty(t, tasks.order, "no row should be created on validation failure")
}

func TestCreateTaskRejectsEnhancedOptionAnalysisMissingIdentifier(t *testing.T) {
	e, tasks := newTestEngine(t)

	_, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskOptionEnhanced,
		InputParams: map[string]any{"symbol": "AAPL"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "option_identifier")
	require.Empty(t, tasks.order)
}

func TestCreateTaskAcceptsValidOptionAnalysis(t *testing.T) {
	e, tasks := newTestEngine(t)

	id, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskOption,
		InputParams: map[string]any{"symbol": "AAPL", "expiry_date": "2026-08-21"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.Len(t, tasks.order, 1)

	row := tasks.rows[id]
	require.Equal(t, storage.TaskPending, row.Status)
	require.Equal(t, "Task created, waiting in queue...", row.CurrentStep.String)
	require.Equal(t, 100, row.Priority, "priority defaults to 100 when unset")
}

func TestCreateTaskQuotaHookAbortsBeforeRowInsert(t *testing.T) {
	e, tasks := newTestEngine(t)
	wantErr := errors.New("quota exceeded")
	e.QuotaHook = func(_ context.Context, userID string, _ storage.TaskType) error {
		require.Equal(t, "u1", userID)
		return wantErr
	}

	_, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskStock,
		InputParams: map[string]any{"ticker": "AAPL"},
	})
	require.ErrorIs(t, err, wantErr)
	require.Empty(t, tasks.order)
}

func TestCreateTaskQuotaHookAllowsOnNilError(t *testing.T) {
	e, _ := newTestEngine(t)
	called := false
	e.QuotaHook = func(context.Context, string, storage.TaskType) error {
		called = true
		return nil
	}

	id, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskStock,
		InputParams: map[string]any{"ticker": "AAPL"},
	})
	require.NoError(t, err)
	require.True(t, called)
	require.NotEqual(t, uuid.Nil, id)
}

func TestGetUserTasksCapsAt50(t *testing.T) {
	e, tasks := newTestEngine(t)
	for i := 0; i < 60; i++ {
		id := uuid.New()
		tasks.rows[id] = &storage.AnalysisTask{ID: id, UserID: "u1"}
		tasks.order = append(tasks.order, id)
	}
	got, err := e.GetUserTasks(context.Background(), "u1", 5000)
	require.NoError(t, err)
	require.Len(t, got, 50)
}

func TestGetTaskStatusUnknownIDReturnsNilNil(t *testing.T) {
	e, _ := newTestEngine(t)
	row, err := e.GetTaskStatus(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestInitShutdownIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Init(ctx))
	require.NoError(t, e.Init(ctx), "second Init should be a no-op")

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(shutdownCtx))
	require.NoError(t, e.Shutdown(shutdownCtx), "second Shutdown should be a no-op")
}
