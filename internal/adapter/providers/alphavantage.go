package providers

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// AlphaVantageAdapter wraps Alpha Vantage's function-based query API. It is
// scoped to fundamentals and earnings only: its free-tier rate limit (5
// requests/minute) and quote/history data are both strictly worse than the
// other registered US providers, so it is kept around purely as a
// valuation-data source of last resort.
//
// Grounded on adapters/alphavantage_adapter.py's OVERVIEW-backed
// get_fundamentals/get_info (field names preserved below) and the
// EARNINGS function documented alongside it in the Alpha Vantage API.
type AlphaVantageAdapter struct {
	http   httpClient
	apiKey string
}

func NewAlphaVantageAdapter(apiKey string) *AlphaVantageAdapter {
	return &AlphaVantageAdapter{http: newHTTPClient("https://www.alphavantage.co", 30*time.Second), apiKey: apiKey}
}

func (a *AlphaVantageAdapter) Name() string { return "alpha_vantage" }

func (a *AlphaVantageAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{adapter.DTFundamentals, adapter.DTEarnings},
		Markets:   []market.Market{market.US},
	}
}

// SupportsSymbol excludes index tickers, futures, and forex/commodity
// specials Alpha Vantage can't resolve.
func (a *AlphaVantageAdapter) SupportsSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	if symbol[0] == '^' {
		return false
	}
	if len(symbol) >= 2 && symbol[len(symbol)-2:] == "=F" {
		return false
	}
	if len(symbol) >= 4 && symbol[len(symbol)-4:] == ".NYB" {
		return false
	}
	return true
}

func (a *AlphaVantageAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTFundamentals:
		return 24 * time.Hour
	case adapter.DTEarnings:
		return 6 * time.Hour
	default:
		return 15 * time.Minute
	}
}

func (a *AlphaVantageAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	if a.apiKey == "" {
		return adapter.StatusUnavailable
	}
	return adapter.StatusHealthy
}

func (a *AlphaVantageAdapter) query(ctx context.Context, params url.Values) (map[string]any, error) {
	params.Set("apikey", a.apiKey)
	var raw map[string]any
	if err := a.http.getJSON(ctx, "/query", params, &raw); err != nil {
		return nil, err
	}
	if msg, ok := raw["Note"]; ok {
		return nil, &rateLimitError{provider: a.Name(), detail: toString(msg)}
	}
	if msg, ok := raw["Information"]; ok {
		return nil, &rateLimitError{provider: a.Name(), detail: toString(msg)}
	}
	return raw, nil
}

type rateLimitError struct {
	provider string
	detail   string
}

func (e *rateLimitError) Error() string {
	return "providers: " + e.provider + " rate limited: " + e.detail
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func avFloat(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func avString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (a *AlphaVantageAdapter) overview(ctx context.Context, symbol string) (map[string]any, error) {
	if a.apiKey == "" {
		return nil, nil
	}
	raw, err := a.query(ctx, url.Values{"function": {"OVERVIEW"}, "symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	if _, ok := raw["Symbol"]; !ok {
		return nil, nil
	}
	return raw, nil
}

func (a *AlphaVantageAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	data, err := a.overview(ctx, symbol)
	if err != nil || data == nil {
		return nil, err
	}
	return &adapter.Fundamentals{
		Symbol:         symbol,
		TrailingPE:     avFloat(data, "TrailingPE"),
		ForwardPE:      avFloat(data, "ForwardPE"),
		PriceToBook:    avFloat(data, "PriceToBookRatio"),
		PriceToSales:   avFloat(data, "PriceToSalesRatioTTM"),
		DividendYield:  avFloat(data, "DividendYield"),
		MarketCap:      avFloat(data, "MarketCapitalization"),
		EPS:            avFloat(data, "EPS"),
		ProfitMargins:  avFloat(data, "ProfitMargin"),
		ReturnOnEquity: avFloat(data, "ReturnOnEquityTTM"),
		Source:         a.Name(),
	}, nil
}

type avQuarterlyEarning struct {
	FiscalDateEnding   string `json:"fiscalDateEnding"`
	ReportedDate       string `json:"reportedDate"`
	ReportedEPS        string `json:"reportedEPS"`
	EstimatedEPS       string `json:"estimatedEPS"`
}

func (a *AlphaVantageAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	if a.apiKey == "" {
		return nil, nil
	}
	var raw struct {
		Symbol             string               `json:"symbol"`
		QuarterlyEarnings  []avQuarterlyEarning `json:"quarterlyEarnings"`
	}
	params := url.Values{"function": {"EARNINGS"}, "symbol": {symbol}, "apikey": {a.apiKey}}
	if err := a.http.getJSON(ctx, "/query", params, &raw); err != nil {
		return nil, err
	}
	if len(raw.QuarterlyEarnings) == 0 {
		return nil, nil
	}
	latest := raw.QuarterlyEarnings[0]
	reportedEPS, _ := strconv.ParseFloat(latest.ReportedEPS, 64)
	estimatedEPS, _ := strconv.ParseFloat(latest.EstimatedEPS, 64)
	nextDate, _ := time.Parse("2006-01-02", latest.ReportedDate)
	return &adapter.EarningsData{
		Symbol: symbol, NextEarningsDate: nextDate, LastEPSActual: reportedEPS, LastEPSEstimate: estimatedEPS, Source: a.Name(),
	}, nil
}

// GetQuote, GetHistory, GetInfo, GetOptionsExpirations, and GetOptionsChain
// are outside this adapter's registered role (see Capabilities) and always
// report no data.
func (a *AlphaVantageAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	return nil, nil
}
func (a *AlphaVantageAdapter) GetHistory(ctx context.Context, symbol, period string) (*adapter.HistoryData, error) {
	return nil, nil
}
func (a *AlphaVantageAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	return nil, nil
}
func (a *AlphaVantageAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}
func (a *AlphaVantageAdapter) GetOptionsChain(ctx context.Context, symbol, expiry string) (*adapter.OptionsChainData, error) {
	return nil, nil
}
