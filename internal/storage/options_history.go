package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// OptionsAnalysisHistory is a per-user copy of a completed options analysis
// (basic chain scoring or the enhanced VRP/risk workflow).
type OptionsAnalysisHistory struct {
	ID               int64           `db:"id"`
	UserID           string          `db:"user_id"`
	Symbol           string          `db:"symbol"`
	OptionIdentifier sql.NullString  `db:"option_identifier"`
	ExpiryDate       sql.NullString  `db:"expiry_date"`
	AnalysisType     string          `db:"analysis_type"`
	StrikePrice      sql.NullFloat64 `db:"strike_price"`
	OptionType       sql.NullString  `db:"option_type"`
	OptionScore      sql.NullFloat64 `db:"option_score"`
	IVRank           sql.NullFloat64 `db:"iv_rank"`
	VRPAnalysis      json.RawMessage `db:"vrp_analysis"`
	RiskAnalysis     json.RawMessage `db:"risk_analysis"`
	AISummary        sql.NullString  `db:"ai_summary"`
	FullAnalysisData json.RawMessage `db:"full_analysis_data"`
	CreatedAt        time.Time       `db:"created_at"`
}

type OptionsHistoryRepository struct {
	db *sqlx.DB
}

func NewOptionsHistoryRepository(db *sqlx.DB) *OptionsHistoryRepository {
	return &OptionsHistoryRepository{db: db}
}

// Insert writes a history row and returns its generated id.
func (r *OptionsHistoryRepository) Insert(ctx context.Context, row *OptionsAnalysisHistory) (int64, error) {
	const q = `
		INSERT INTO options_analysis_history
			(user_id, symbol, option_identifier, expiry_date, analysis_type,
			 strike_price, option_type, option_score, iv_rank,
			 vrp_analysis, risk_analysis, ai_summary, full_analysis_data, created_at)
		VALUES
			(:user_id, :symbol, :option_identifier, :expiry_date, :analysis_type,
			 :strike_price, :option_type, :option_score, :iv_rank,
			 :vrp_analysis, :risk_analysis, :ai_summary, :full_analysis_data, :created_at)
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

// ListByUser returns a user's options analysis history, newest first.
func (r *OptionsHistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]OptionsAnalysisHistory, error) {
	const q = `
		SELECT * FROM options_analysis_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	var rows []OptionsAnalysisHistory
	if err := r.db.SelectContext(ctx, &rows, q, userID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
