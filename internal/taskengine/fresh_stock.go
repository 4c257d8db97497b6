package taskengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alphagbm/analysiscore/internal/storage"
)

// processStockAnalysis runs a real stock analysis via the injected
// StockAnalysisRunner, then writes both a history row and a daily cache
// row, per spec.md §4.F.5. Losing the cache insert to a sibling task
// (ErrCacheConflict) is logged and ignored; any other insert error fails
// the task.
func (e *Engine) processStockAnalysis(ctx context.Context, desc taskDescriptor) error {
	ticker := stringParam(desc.inputParams, "ticker")
	style := stringParamOr(desc.inputParams, "style", "quality")

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 10, fmt.Sprintf("Initializing analysis for %s...", ticker)); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 30, "Fetching market data..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 60, "Running AI analysis..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	if e.stockRunner == nil {
		return errors.New("no stock analysis runner configured")
	}
	result, err := e.stockRunner(ctx, ticker, style)
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("stock analysis returned no result")
	}
	if errVal, ok := result["error"]; ok {
		return fmt.Errorf("stock analysis failed: %v", errVal)
	}

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 90, "Saving analysis results..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	historyID, err := e.saveStockHistory(ctx, desc.userID, desc.inputParams, result)
	if err != nil {
		return fmt.Errorf("save stock analysis history: %w", err)
	}

	payloadJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	cacheErr := e.dailyCache.Insert(ctx, &storage.DailyAnalysisCache{
		Ticker:           ticker,
		Style:            style,
		AnalysisDate:     today,
		FullAnalysisData: payloadJSON,
		SourceTaskID:     uuidNullFrom(desc.taskID),
		CreatedAt:        time.Now(),
	})
	switch {
	case cacheErr == nil:
		e.logger.WithFields(map[string]interface{}{"ticker": ticker, "style": style}).Info("saved analysis to daily cache")
	case errors.Is(cacheErr, storage.ErrCacheConflict):
		// Another task won the race for this (ticker, style, date); the
		// existing row is authoritative, this task still gets its own
		// history row above.
		e.logger.WithFields(map[string]interface{}{"ticker": ticker, "style": style}).Info("daily cache entry already exists, skipping insert")
	default:
		return fmt.Errorf("insert daily cache row: %w", cacheErr)
	}

	if err := e.tasks.Complete(ctx, desc.taskID, payloadJSON, &historyID, "stock", "Analysis completed successfully"); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}
