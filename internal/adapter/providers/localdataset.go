package providers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// LocalDatasetAdapter serves quote/history data from a preloaded local
// snapshot rather than a network call, for US symbols only. It never rate
// limits; cmd/analysiscore registers it at priority 5, ahead of yfinance
// and alphavantage but behind the tiger broker adapter, and a symbol the
// snapshot does not cover falls through to the next provider.
//
// Grounded on adapters/defeatbeta_adapter.py: a local-dataset-backed
// fallback provider with no real rate limiting, US-only coverage,
// and no macro-ticker or HK/CN-suffixed symbol support. The Python
// version queries a local DuckDB file seeded from a HuggingFace
// snapshot; this Go port keeps in-memory quote and history maps the
// caller loads at startup (e.g. from a CSV/parquet export), since embedding a DuckDB
// driver is out of scope for this service's dependency set.
type LocalDatasetAdapter struct {
	mu     sync.RWMutex
	quotes map[string]adapter.Quote
	bars   map[string][]adapter.HistoryBar
}

// NewLocalDatasetAdapter creates an empty dataset adapter; use LoadQuote/
// LoadHistory to seed it at startup.
func NewLocalDatasetAdapter() *LocalDatasetAdapter {
	return &LocalDatasetAdapter{
		quotes: make(map[string]adapter.Quote),
		bars:   make(map[string][]adapter.HistoryBar),
	}
}

// LoadQuote seeds (or replaces) the cached quote for symbol.
func (l *LocalDatasetAdapter) LoadQuote(symbol string, q adapter.Quote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q.Source = l.Name()
	l.quotes[strings.ToUpper(symbol)] = q
}

// LoadHistory seeds (or replaces) the cached OHLCV bars for symbol,
// sorted chronologically.
func (l *LocalDatasetAdapter) LoadHistory(symbol string, bars []adapter.HistoryBar) {
	sorted := append([]adapter.HistoryBar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	l.mu.Lock()
	defer l.mu.Unlock()
	l.bars[strings.ToUpper(symbol)] = sorted
}

func (l *LocalDatasetAdapter) Name() string { return "localdataset" }

func (l *LocalDatasetAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{adapter.DTQuote, adapter.DTHistory},
		Markets:   []market.Market{market.US},
	}
}

// SupportsSymbol excludes macro tickers and HK/CN-suffixed symbols,
// matching the Python adapter's supports_symbol rule.
func (l *LocalDatasetAdapter) SupportsSymbol(symbol string) bool {
	if market.IsMacroTicker(symbol) {
		return false
	}
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, ".HK") || strings.HasSuffix(upper, ".SS") || strings.HasSuffix(upper, ".SZ") {
		return false
	}
	return true
}

func (l *LocalDatasetAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTQuote:
		return 5 * time.Minute // dataset snapshots are delayed, not real-time
	case adapter.DTHistory:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

func (l *LocalDatasetAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	return adapter.StatusHealthy
}

func (l *LocalDatasetAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.quotes[strings.ToUpper(symbol)]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (l *LocalDatasetAdapter) GetHistory(ctx context.Context, symbol string, period string) (*adapter.HistoryData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bars, ok := l.bars[strings.ToUpper(symbol)]
	if !ok || len(bars) == 0 {
		return nil, nil
	}
	trimmed := trimByPeriod(bars, period)
	if len(trimmed) == 0 {
		return nil, nil
	}
	return &adapter.HistoryData{Symbol: symbol, Bars: trimmed, Source: l.Name()}, nil
}

func trimByPeriod(bars []adapter.HistoryBar, period string) []adapter.HistoryBar {
	d, ok := periodToDuration(period)
	if !ok {
		return bars
	}
	cutoff := bars[len(bars)-1].Time.Add(-d)
	idx := sort.Search(len(bars), func(i int) bool { return !bars[i].Time.Before(cutoff) })
	return bars[idx:]
}

func periodToDuration(period string) (time.Duration, bool) {
	switch period {
	case "1d":
		return 24 * time.Hour, true
	case "5d":
		return 5 * 24 * time.Hour, true
	case "1mo":
		return 31 * 24 * time.Hour, true
	case "3mo":
		return 93 * 24 * time.Hour, true
	case "6mo":
		return 186 * 24 * time.Hour, true
	case "1y":
		return 366 * 24 * time.Hour, true
	case "2y":
		return 2 * 366 * 24 * time.Hour, true
	case "5y":
		return 5 * 366 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// GetFundamentals, GetInfo, GetOptionsExpirations, GetOptionsChain, and
// GetEarnings are unsupported by this provider (see Capabilities) and
// always report no data rather than erroring, so a misrouted call degrades
// gracefully instead of tripping the circuit breaker.
func (l *LocalDatasetAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	return nil, nil
}
func (l *LocalDatasetAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	return nil, nil
}
func (l *LocalDatasetAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}
func (l *LocalDatasetAdapter) GetOptionsChain(ctx context.Context, symbol string, expiry string) (*adapter.OptionsChainData, error) {
	return nil, nil
}
func (l *LocalDatasetAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	return nil, nil
}
