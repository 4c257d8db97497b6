package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// cachedStep is one entry in the CACHED-playback schedule: a progress
// percent, a step message, and how long to hold that step before moving on.
type cachedStep struct {
	percent int
	message string
	delay   time.Duration
}

// cachedPlaybackSchedule is task_queue.py's fake_steps, preserved verbatim —
// spec.md §9 explicitly forbids "optimizing" these away.
var cachedPlaybackSchedule = []cachedStep{
	{10, "Initializing analysis...", 1500 * time.Millisecond},
	{30, "Fetching market data...", 2000 * time.Millisecond},
	{55, "Calculating risk metrics...", 2000 * time.Millisecond},
	{75, "Running AI analysis...", 2500 * time.Millisecond},
	{90, "Generating report...", 1500 * time.Millisecond},
}

// processCachedTask simulates realistic progress over ~10 seconds of wall
// time and then delivers the pre-computed payload, so the caller-facing UX
// is identical regardless of cache hit — spec.md §4.F.3.
func (e *Engine) processCachedTask(ctx context.Context, desc taskDescriptor) error {
	for _, step := range cachedPlaybackSchedule {
		if err := e.tasks.UpdateProgress(ctx, desc.taskID, step.percent, step.message); err != nil {
			e.logger.WithError(err).Warn("progress update failed")
		}
		if err := sleepCtx(ctx, step.delay); err != nil {
			return err
		}
	}

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 95, "Saving analysis results..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	return e.finishWithStockResult(ctx, desc, desc.cachedData)
}

// finishWithStockResult writes the history row, attaches the result to the
// task, and transitions it to COMPLETED — the tail shared by CACHED
// playback and the WAITING loop once a payload is in hand.
func (e *Engine) finishWithStockResult(ctx context.Context, desc taskDescriptor, payload map[string]any) error {
	historyID, err := e.saveStockHistory(ctx, desc.userID, desc.inputParams, payload)
	if err != nil {
		return fmt.Errorf("save analysis history: %w", err)
	}

	resultJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal result payload: %w", err)
	}

	if err := e.tasks.Complete(ctx, desc.taskID, resultJSON, &historyID, "stock", "Analysis completed successfully"); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}
