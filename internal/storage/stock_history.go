package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// StockAnalysisHistory is a per-user copy of a completed stock analysis,
// kept for user-facing history listings.
type StockAnalysisHistory struct {
	ID                        int64           `db:"id"`
	UserID                    string          `db:"user_id"`
	Ticker                    string          `db:"ticker"`
	Style                     string          `db:"style"`
	CurrentPrice              sql.NullFloat64 `db:"current_price"`
	TargetPrice               sql.NullFloat64 `db:"target_price"`
	StopLossPrice             sql.NullFloat64 `db:"stop_loss_price"`
	MarketSentiment           sql.NullFloat64 `db:"market_sentiment"`
	RiskScore                 sql.NullFloat64 `db:"risk_score"`
	RiskLevel                 sql.NullString  `db:"risk_level"`
	PositionSize              sql.NullFloat64 `db:"position_size"`
	EVScore                   sql.NullFloat64 `db:"ev_score"`
	EVWeightedPct             sql.NullFloat64 `db:"ev_weighted_pct"`
	RecommendationAction     sql.NullString  `db:"recommendation_action"`
	RecommendationConfidence sql.NullString  `db:"recommendation_confidence"`
	AISummary                sql.NullString  `db:"ai_summary"`
	FullAnalysisData         json.RawMessage `db:"full_analysis_data"`
	CreatedAt                time.Time       `db:"created_at"`
}

type StockHistoryRepository struct {
	db *sqlx.DB
}

func NewStockHistoryRepository(db *sqlx.DB) *StockHistoryRepository {
	return &StockHistoryRepository{db: db}
}

// Insert writes a history row and returns its generated id, used as the
// AnalysisTask's related_history_id.
func (r *StockHistoryRepository) Insert(ctx context.Context, row *StockAnalysisHistory) (int64, error) {
	const q = `
		INSERT INTO stock_analysis_history
			(user_id, ticker, style, current_price, target_price, stop_loss_price,
			 market_sentiment, risk_score, risk_level, position_size,
			 ev_score, ev_weighted_pct, recommendation_action, recommendation_confidence,
			 ai_summary, full_analysis_data, created_at)
		VALUES
			(:user_id, :ticker, :style, :current_price, :target_price, :stop_loss_price,
			 :market_sentiment, :risk_score, :risk_level, :position_size,
			 :ev_score, :ev_weighted_pct, :recommendation_action, :recommendation_confidence,
			 :ai_summary, :full_analysis_data, :created_at)
		RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, q, row)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// ListByUser returns a user's stock analysis history, newest first.
func (r *StockHistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]StockAnalysisHistory, error) {
	const q = `
		SELECT * FROM stock_analysis_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var rows []StockAnalysisHistory
	if err := r.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
