package taskengine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alphagbm/analysiscore/internal/storage"
)

func TestRunTaskFailsOnUnknownTaskType(t *testing.T) {
	e, tasks := newTestEngine(t)

	desc := taskDescriptor{taskID: uuid.New(), userID: "u1", taskType: "not_a_real_type"}
	tasks.rows[desc.taskID] = &storage.AnalysisTask{ID: desc.taskID, UserID: "u1", Status: storage.TaskPending}
	tasks.order = append(tasks.order, desc.taskID)

	e.runTask(context.Background(), "TestWorker", desc)

	row := tasks.rows[desc.taskID]
	require.Equal(t, storage.TaskFailed, row.Status)
	require.Contains(t, row.ErrorMessage.String, "unknown task type")
}

func TestRunTaskMarksProcessingBeforeDispatch(t *testing.T) {
	e, tasks := newTestEngine(t)

	e.stockRunner = func(context.Context, string, string) (map[string]any, error) {
		return map[string]any{"data": map[string]any{}, "risk": map[string]any{}}, nil
	}

	desc := taskDescriptor{
		taskID:      uuid.New(),
		userID:      "u1",
		taskType:    string(storage.TaskStock),
		inputParams: map[string]any{"ticker": "AAPL"},
	}
	tasks.rows[desc.taskID] = &storage.AnalysisTask{ID: desc.taskID, UserID: "u1", Status: storage.TaskPending}
	tasks.order = append(tasks.order, desc.taskID)

	e.runTask(context.Background(), "TestWorker", desc)

	row := tasks.rows[desc.taskID]
	require.True(t, row.StartedAt.Valid, "MarkProcessing must stamp started_at")
	require.Equal(t, storage.TaskCompleted, row.Status)
}
