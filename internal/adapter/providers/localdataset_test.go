package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alphagbm/analysiscore/internal/adapter"
)

func TestLocalDatasetGetQuoteHitAndMiss(t *testing.T) {
	a := NewLocalDatasetAdapter()
	a.LoadQuote("AAPL", adapter.Quote{Symbol: "AAPL", CurrentPrice: 123.45})

	q, err := a.GetQuote(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, q)
	require.Equal(t, 123.45, q.CurrentPrice)
	require.Equal(t, "localdataset", q.Source)

	miss, err := a.GetQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Nil(t, miss)
}

func TestLocalDatasetSupportsSymbolExcludesMacroAndForeign(t *testing.T) {
	a := NewLocalDatasetAdapter()
	require.True(t, a.SupportsSymbol("AAPL"))
	require.False(t, a.SupportsSymbol("^GSPC"))
	require.False(t, a.SupportsSymbol("0700.HK"))
	require.False(t, a.SupportsSymbol("600519.SS"))
}

func TestLocalDatasetGetHistoryTrimsByPeriod(t *testing.T) {
	a := NewLocalDatasetAdapter()
	now := time.Now().UTC()
	bars := []adapter.HistoryBar{
		{Time: now.AddDate(0, 0, -400), Close: 1},
		{Time: now.AddDate(0, 0, -40), Close: 2},
		{Time: now.AddDate(0, 0, -2), Close: 3},
	}
	a.LoadHistory("AAPL", bars)

	hist, err := a.GetHistory(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	require.NotNil(t, hist)
	require.Len(t, hist.Bars, 1)
	require.Equal(t, 3.0, hist.Bars[0].Close)
}

func TestLocalDatasetUnsupportedOpsReturnNilNil(t *testing.T) {
	a := NewLocalDatasetAdapter()
	f, err := a.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Nil(t, f)

	info, err := a.GetInfo(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Nil(t, info)
}
