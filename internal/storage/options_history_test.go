package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestOptionsHistoryRepositoryInsertReturnsID(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewOptionsHistoryRepository(sdb)

	row := &OptionsAnalysisHistory{
		UserID:       "u1",
		Symbol:       "AAPL",
		AnalysisType: "basic_chain",
		StrikePrice:  sql.NullFloat64{Float64: 190.0, Valid: true},
		OptionType:   sql.NullString{String: "call", Valid: true},
		VRPAnalysis:  json.RawMessage(`{}`),
		RiskAnalysis: json.RawMessage(`{}`),
	}

	mock.ExpectQuery("INSERT INTO options_analysis_history").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.Insert(context.Background(), row)
	require.NoError(t, err)
	require.EqualValues(t, 7, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptionsHistoryRepositoryListByUser(t *testing.T) {
	sdb, mock := newMockRepo(t)
	repo := NewOptionsHistoryRepository(sdb)

	mock.ExpectQuery("SELECT \\* FROM options_analysis_history").
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "symbol", "analysis_type"}).
			AddRow(int64(1), "u1", "AAPL", "basic_chain"))

	rows, err := repo.ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
