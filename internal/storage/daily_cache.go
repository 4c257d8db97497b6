package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DailyAnalysisCache is the canonical result for a (ticker, style, date)
// triple: inserted exactly once per day per pair, never updated.
type DailyAnalysisCache struct {
	ID               int64           `db:"id"`
	Ticker           string          `db:"ticker"`
	Style            string          `db:"style"`
	AnalysisDate     time.Time       `db:"analysis_date"`
	FullAnalysisData json.RawMessage `db:"full_analysis_data"`
	SourceTaskID     uuid.NullUUID   `db:"source_task_id"`
	CreatedAt        time.Time       `db:"created_at"`
}

type DailyCacheRepository struct {
	db *sqlx.DB
}

func NewDailyCacheRepository(db *sqlx.DB) *DailyCacheRepository {
	return &DailyCacheRepository{db: db}
}

// Get returns the cached analysis for (ticker, style, date), or nil if none exists.
func (r *DailyCacheRepository) Get(ctx context.Context, ticker, style string, date time.Time) (*DailyAnalysisCache, error) {
	const q = `
		SELECT * FROM daily_analysis_cache
		WHERE ticker = $1 AND style = $2 AND analysis_date = $3`
	var row DailyAnalysisCache
	if err := r.db.GetContext(ctx, &row, q, ticker, style, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ErrCacheConflict signals that the unique (ticker, style, analysis_date)
// constraint fired — another task already produced today's cache row.
var ErrCacheConflict = errors.New("storage: daily analysis cache row already exists")

// Insert inserts a cache row for a date the core has not yet cached. It
// returns ErrCacheConflict, not a generic error, when a sibling task won the
// race and the unique constraint fires — the caller should treat the
// existing row as authoritative rather than retry.
func (r *DailyCacheRepository) Insert(ctx context.Context, row *DailyAnalysisCache) error {
	const q = `
		INSERT INTO daily_analysis_cache
			(ticker, style, analysis_date, full_analysis_data, source_task_id, created_at)
		VALUES
			(:ticker, :style, :analysis_date, :full_analysis_data, :source_task_id, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCacheConflict
		}
		return err
	}
	return nil
}
