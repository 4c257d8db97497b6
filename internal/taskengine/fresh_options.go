package taskengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alphagbm/analysiscore/internal/storage"
)

// processOptionsAnalysis runs a real options analysis (basic-chain or
// enhanced, depending on task type) via the injected OptionsAnalysisRunner
// and writes an OptionsAnalysisHistory row — spec.md §4.F.6. No daily cache
// is written for option analyses.
func (e *Engine) processOptionsAnalysis(ctx context.Context, desc taskDescriptor) error {
	symbol := stringParam(desc.inputParams, "symbol")
	enhanced := desc.taskType == string(storage.TaskOptionEnhanced)

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 10, fmt.Sprintf("Initializing options analysis for %s...", symbol)); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 40, "Fetching options chain data..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}
	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 70, "Analyzing options strategies..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	if e.optionsRunner == nil {
		return errors.New("no options analysis runner configured")
	}

	req := OptionsRunRequest{
		Symbol:           symbol,
		Enhanced:         enhanced,
		ExpiryDate:       stringParam(desc.inputParams, "expiry_date"),
		OptionIdentifier: stringParam(desc.inputParams, "option_identifier"),
	}
	result, err := e.optionsRunner(ctx, req)
	if err != nil {
		return err
	}
	if result == nil {
		return errors.New("options analysis returned no result")
	}
	if errVal, ok := result["error"]; ok {
		return fmt.Errorf("options analysis failed: %v", errVal)
	}

	if err := e.tasks.UpdateProgress(ctx, desc.taskID, 90, "Saving analysis results..."); err != nil {
		e.logger.WithError(err).Warn("progress update failed")
	}

	analysisType := "basic_chain"
	if enhanced {
		analysisType = "enhanced_analysis"
	}

	payloadJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}

	vrpJSON, _ := json.Marshal(result["vrp_analysis"])
	riskJSON, _ := json.Marshal(result["risk_analysis"])

	row := &storage.OptionsAnalysisHistory{
		UserID:           desc.userID,
		Symbol:           symbol,
		OptionIdentifier: stringField(desc.inputParams, "option_identifier"),
		ExpiryDate:       stringField(desc.inputParams, "expiry_date"),
		AnalysisType:     analysisType,
		StrikePrice:      floatField(result, "strike_price"),
		OptionType:       stringField(result, "option_type"),
		OptionScore:      floatField(result, "option_score"),
		IVRank:           floatField(result, "iv_rank"),
		VRPAnalysis:      vrpJSON,
		RiskAnalysis:     riskJSON,
		AISummary:        truncateSummary(result["ai_summary"]),
		FullAnalysisData: payloadJSON,
		CreatedAt:        time.Now(),
	}

	historyID, err := e.optionsHistory.Insert(ctx, row)
	if err != nil {
		return fmt.Errorf("save options analysis history: %w", err)
	}

	if err := e.tasks.Complete(ctx, desc.taskID, payloadJSON, &historyID, "options", "Options analysis completed successfully"); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}
