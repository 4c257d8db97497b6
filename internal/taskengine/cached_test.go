package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alphagbm/analysiscore/internal/storage"
)

func TestProcessCachedTaskReplaysScheduleAndCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("full cached-playback schedule takes ~9.5s, skipped in -short mode")
	}

	e, tasks := newTestEngine(t)
	id, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskStock,
		InputParams: map[string]any{"ticker": "AAPL", "style": "quality"},
		CacheMode:   CacheModeCached,
		CachedData: map[string]any{
			"data":   map[string]any{"price": 190.5, "ev_model": map[string]any{"ev_score": 1.2}},
			"risk":   map[string]any{"score": 0.4, "level": "moderate"},
			"report": "steady uptrend",
		},
	})
	require.NoError(t, err)

	desc, ok := e.queue.pop(context.Background())
	require.True(t, ok)
	require.Equal(t, id, desc.taskID)

	start := time.Now()
	e.runTask(context.Background(), "TestWorker", desc)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 9*time.Second, "cached schedule delays must be honored, not skipped")

	row := tasks.rows[id]
	require.Equal(t, storage.TaskCompleted, row.Status)
	require.Equal(t, 100, row.ProgressPercent)
	require.Equal(t, "Analysis completed successfully", row.CurrentStep.String)
	require.True(t, row.RelatedHistoryID.Valid)
	require.Equal(t, "stock", row.RelatedHistoryType.String)
}

func TestProcessCachedTaskStopsPromptlyOnCancel(t *testing.T) {
	e, tasks := newTestEngine(t)
	id, err := e.CreateTask(context.Background(), CreateTaskParams{
		UserID:      "u1",
		TaskType:    storage.TaskStock,
		InputParams: map[string]any{"ticker": "AAPL"},
		CacheMode:   CacheModeCached,
		CachedData:  map[string]any{"data": map[string]any{}, "risk": map[string]any{}},
	})
	require.NoError(t, err)

	desc, ok := e.queue.pop(context.Background())
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	e.runTask(ctx, "TestWorker", desc)
	require.Less(t, time.Since(start), time.Second, "cancelled context should abort the scripted delay immediately")

	row := tasks.rows[id]
	require.Equal(t, storage.TaskFailed, row.Status)
}

func TestFinishWithStockResultMapsPayloadFields(t *testing.T) {
	e, tasks := newTestEngine(t)
	desc := taskDescriptor{
		taskID:      uuid.New(),
		userID:      "u1",
		inputParams: map[string]any{"ticker": "MSFT", "style": "growth"},
	}
	tasks.rows[desc.taskID] = &storage.AnalysisTask{ID: desc.taskID, UserID: "u1", Status: storage.TaskProcessing}
	tasks.order = append(tasks.order, desc.taskID)

	payload := map[string]any{
		"data": map[string]any{
			"price":           410.0,
			"target_price":    450.0,
			"stop_loss_price": 390.0,
			"ev_model": map[string]any{
				"ev_score":       2.1,
				"ev_weighted_pct": 0.08,
				"recommendation": map[string]any{"action": "buy", "confidence": "high"},
			},
		},
		"risk": map[string]any{"score": 0.3, "level": "low", "suggested_position": 0.05},
		"report": map[string]any{"summary": "strong momentum"},
	}

	err := e.finishWithStockResult(context.Background(), desc, payload)
	require.NoError(t, err)

	stockStore := e.stockHistory.(*fakeStockHistoryStore)
	require.Len(t, stockStore.rows, 1)
	row := stockStore.rows[0]
	require.Equal(t, "MSFT", row.Ticker)
	require.Equal(t, "growth", row.Style)
	require.Equal(t, 410.0, row.CurrentPrice.Float64)
	require.Equal(t, "buy", row.RecommendationAction.String)
	require.Equal(t, "strong momentum", row.AISummary.String)
	require.False(t, row.CreatedAt.IsZero(), "created_at must be stamped, not left zero-valued")

	require.Equal(t, storage.TaskCompleted, tasks.rows[desc.taskID].Status)
}
