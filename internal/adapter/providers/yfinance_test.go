package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

func TestYFinanceGetQuoteParsesChartResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/v8/finance/chart/AAPL")
		payload := map[string]any{
			"chart": map[string]any{
				"result": []map[string]any{
					{
						"meta": map[string]any{
							"regularMarketPrice": 190.5,
							"chartPreviousClose": 188.0,
						},
						"timestamp": []int64{1700000000},
						"indicators": map[string]any{
							"quote": []map[string]any{
								{
									"open":   []float64{189.0},
									"high":   []float64{191.0},
									"low":    []float64{187.5},
									"close":  []float64{190.5},
									"volume": []int64{1000000},
								},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	a := NewYFinanceAdapter(server.URL)
	q, err := a.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, q)
	require.Equal(t, 190.5, q.CurrentPrice)
	require.Equal(t, 188.0, q.PreviousClose)
	require.Equal(t, int64(1000000), q.Volume)
}

func TestYFinanceGetQuoteNoResultReturnsNilNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"chart": map[string]any{"result": []any{}}})
	}))
	defer server.Close()

	a := NewYFinanceAdapter(server.URL)
	q, err := a.GetQuote(context.Background(), "NOPE")
	require.NoError(t, err)
	require.Nil(t, q)
}

func TestYFinanceGetQuoteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	a := NewYFinanceAdapter(server.URL)
	_, err := a.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestYFinanceOptionsUnsupportedForMacroTicker(t *testing.T) {
	a := NewYFinanceAdapter("http://unused.invalid")
	exps, err := a.GetOptionsExpirations(context.Background(), "^GSPC")
	require.NoError(t, err)
	require.Nil(t, exps)
}

func TestYFinanceCapabilitiesAndMarkets(t *testing.T) {
	a := NewYFinanceAdapter("")
	caps := a.Capabilities()
	require.True(t, caps.Has(adapter.DTQuote))
	require.True(t, caps.Covers(market.US))
	require.True(t, caps.Covers(market.HK))
}
