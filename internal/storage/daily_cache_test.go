package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDailyCacheRepositoryGetHit(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewDailyCacheRepository(sdb)

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT \\* FROM daily_analysis_cache").
		WithArgs("AAPL", "quality", date).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticker", "style", "analysis_date", "full_analysis_data", "source_task_id", "created_at"}).
			AddRow(int64(1), "AAPL", "quality", date, json.RawMessage(`{"price":195.0}`), nil, time.Now()))

	row, err := repo.Get(context.Background(), "AAPL", "quality", date)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "AAPL", row.Ticker)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCacheRepositoryGetMiss(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewDailyCacheRepository(sdb)

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT \\* FROM daily_analysis_cache").
		WithArgs("TSLA", "growth", date).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := repo.Get(context.Background(), "TSLA", "growth", date)
	require.NoError(t, err)
	require.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCacheRepositoryInsertConflictMapsToErrCacheConflict(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewDailyCacheRepository(sdb)

	row := &DailyAnalysisCache{
		Ticker:           "AAPL",
		Style:            "quality",
		AnalysisDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		FullAnalysisData: json.RawMessage(`{}`),
		SourceTaskID:     uuid.NullUUID{UUID: uuid.New(), Valid: true},
		CreatedAt:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO daily_analysis_cache").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Insert(context.Background(), row)
	require.ErrorIs(t, err, ErrCacheConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
