package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alphagbm/analysiscore/internal/storage"
)

var waitingStepMessages = []string{
	"Fetching market data...",
	"Calculating risk metrics...",
	"Running AI analysis...",
}

// processWaitingTask waits for a sibling task to populate the daily cache,
// then reuses its result — spec.md §4.F.4. It creates its own history row
// for this task's user even though the payload is shared.
func (e *Engine) processWaitingTask(ctx context.Context, desc taskDescriptor) error {
	ticker := stringParam(desc.inputParams, "ticker")
	style := stringParamOr(desc.inputParams, "style", "quality")

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 10, "Initializing analysis..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := sleepCtx(ctx, time.Second); err != nil {
		return err
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 20, "Fetching market data..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	maxWait := e.waitConfig.MaxWait
	pollInterval := e.waitConfig.PollInterval
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var payload map[string]any
	var waited time.Duration

	for waited < maxWait {
		cacheRow, err := e.dailyCache.Get(ctx, ticker, style, today)
		if err != nil {
			return fmt.Errorf("poll daily cache: %w", err)
		}
		if cacheRow != nil {
			if err := json.Unmarshal(cacheRow.FullAnalysisData, &payload); err != nil {
				return fmt.Errorf("unmarshal cached payload: %w", err)
			}
			break
		}

		sourceTask, err := e.tasks.Get(ctx, desc.sourceTaskID)
		if err != nil {
			return fmt.Errorf("poll source task: %w", err)
		}
		if sourceTask != nil && sourceTask.Status == storage.TaskFailed {
			return fmt.Errorf("source task %s failed: %s", desc.sourceTaskID, sourceTask.ErrorMessage.String)
		}

		percent := 20 + int(float64(waited)/float64(maxWait)*50)
		if percent > 70 {
			percent = 70
		}
		stepIdx := int(waited/(20*time.Second))
		if stepIdx >= len(waitingStepMessages) {
			stepIdx = len(waitingStepMessages) - 1
		}
		if err := e.tasks.UpdateProgress(ctx, desc.taskID, percent, waitingStepMessages[stepIdx]); err != nil {
			e.logger.WithError(err).Warn("progress update failed")
		}

		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
		waited += pollInterval
	}

	if payload == nil {
		return fmt.Errorf("timed out waiting for source task %s to complete", desc.sourceTaskID)
	}

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 80, "Generating report..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := sleepCtx(ctx, 1500*time.Millisecond); err != nil {
		return err
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 95, "Saving analysis results..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	return e.finishWithStockResult(ctx, desc, payload)
}
