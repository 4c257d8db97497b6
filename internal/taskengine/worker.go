package taskengine

import (
	"context"
	"fmt"

	"github.com/alphagbm/analysiscore/internal/storage"
)

func (e *Engine) workerLoop(ctx context.Context, name string) {
	defer e.wg.Done()
	e.logger.WithFields(map[string]interface{}{"worker": name}).Info("worker started")

	for {
		desc, ok := e.queue.pop(ctx)
		if !ok {
			e.logger.WithFields(map[string]interface{}{"worker": name}).Info("worker stopped")
			return
		}
		e.runTask(ctx, name, desc)
	}
}

// runTask transitions a descriptor from PENDING to PROCESSING, dispatches
// to the mode-specific handler, and records FAILED with a bounded error
// message on any error — spec.md §4.F.2's worker-loop contract.
func (e *Engine) runTask(ctx context.Context, worker string, desc taskDescriptor) {
	if err := e.tasks.MarkProcessing(ctx, desc.taskID); err != nil {
		e.logger.WithError(err).Error("mark task processing failed")
		return
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 0, "Starting analysis..."); err != nil {
		e.logger.WithError(err).Warn("initial progress update failed")
	}

	e.logger.WithFields(map[string]interface{}{
		"worker":  worker,
		"task_id": desc.taskID.String(),
	}).Info("worker processing task")

	var err error
	switch {
	case desc.cacheMode == CacheModeCached:
		err = e.processCachedTask(ctx, desc)
	case desc.cacheMode == CacheModeWaiting:
		err = e.processWaitingTask(ctx, desc)
	case desc.taskType == string(storage.TaskStock):
		err = e.processStockAnalysis(ctx, desc)
	case desc.taskType == string(storage.TaskOption) || desc.taskType == string(storage.TaskOptionEnhanced):
		err = e.processOptionsAnalysis(ctx, desc)
	default:
		err = fmt.Errorf("unknown task type: %s", desc.taskType)
	}

	if err != nil {
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"worker":  worker,
			"task_id": desc.taskID.String(),
		}).Error("worker failed to process task")

		step := fmt.Sprintf("Task failed: %s", err.Error())
		if failErr := e.tasks.Fail(ctx, desc.taskID, step, err.Error()); failErr != nil {
			e.logger.WithError(failErr).Error("failed to record task failure")
		}
		return
	}

	e.logger.WithFields(map[string]interface{}{
		"worker":  worker,
		"task_id": desc.taskID.String(),
	}).Info("worker completed task")
}
