package taskengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alphagbm/analysiscore/internal/storage"
)

func floatField(m map[string]any, key string) sql.NullFloat64 {
	v, ok := m[key]
	if !ok || v == nil {
		return sql.NullFloat64{}
	}
	switch n := v.(type) {
	case float64:
		return sql.NullFloat64{Float64: n, Valid: true}
	case int:
		return sql.NullFloat64{Float64: float64(n), Valid: true}
	default:
		return sql.NullFloat64{}
	}
}

func stringField(m map[string]any, key string) sql.NullString {
	v, ok := m[key]
	if !ok || v == nil {
		return sql.NullString{}
	}
	if s, ok := v.(string); ok && s != "" {
		return sql.NullString{String: s, Valid: true}
	}
	return sql.NullString{}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// truncateSummary mirrors the Python helper's `[:1000]` slice applied to
// whichever AI-summary shape the payload carries (a string, or a dict with
// a "summary" key).
func truncateSummary(aiReport any) sql.NullString {
	var s string
	switch v := aiReport.(type) {
	case string:
		s = v
	case map[string]any:
		if summary, ok := v["summary"].(string); ok {
			s = summary
		}
	}
	if s == "" {
		return sql.NullString{}
	}
	if len(s) > 1000 {
		s = s[:1000]
	}
	return sql.NullString{String: s, Valid: true}
}

// saveStockHistory builds and inserts a StockAnalysisHistory row from a
// completed (or cache-replayed) analysis payload, extracting the same
// summary fields _save_stock_history_from_cached pulls out of
// payload["data"], payload["risk"], and payload["data"]["ev_model"].
func (e *Engine) saveStockHistory(ctx context.Context, userID string, params, payload map[string]any) (int64, error) {
	ticker := stringParam(params, "ticker")
	style := stringParamOr(params, "style", "quality")

	marketData := asMap(payload["data"])
	riskResult := asMap(payload["risk"])
	evResult := asMap(marketData["ev_model"])
	recommendation := asMap(evResult["recommendation"])

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("taskengine: marshal analysis payload: %w", err)
	}

	row := &storage.StockAnalysisHistory{
		UserID:                   userID,
		Ticker:                   ticker,
		Style:                    style,
		CurrentPrice:             floatField(marketData, "price"),
		TargetPrice:              floatField(marketData, "target_price"),
		StopLossPrice:            floatField(marketData, "stop_loss_price"),
		MarketSentiment:          floatField(marketData, "market_sentiment"),
		RiskScore:                floatField(riskResult, "score"),
		RiskLevel:                stringField(riskResult, "level"),
		PositionSize:             floatField(riskResult, "suggested_position"),
		EVScore:                  floatField(evResult, "ev_score"),
		EVWeightedPct:            floatField(evResult, "ev_weighted_pct"),
		RecommendationAction:     stringField(recommendation, "action"),
		RecommendationConfidence: stringField(recommendation, "confidence"),
		AISummary:                truncateSummary(payload["report"]),
		FullAnalysisData:         payloadJSON,
		CreatedAt:                time.Now(),
	}

	return e.stockHistory.Insert(ctx, row)
}
