package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// TigerAdapter is the broker-backed adapter: it has the broadest market
// coverage (US, HK, CN) and the highest priority by default since its
// data comes from the account's own brokerage feed. It is also the only
// adapter exposing GetMarginRate.
//
// Grounded on adapters/tiger_adapter.py's TigerAdapter: broadest
// supported_markets of any adapter, get_margin_rate's margin_rate/
// margin_requirement fallback (a requirement expressed as a percentage
// >1 is normalized to a decimal fraction).
type TigerAdapter struct {
	http      httpClient
	accountID string
}

// NewTigerAdapter creates a TigerAdapter against the Tiger Open API
// gateway. apiKey is sent as a bearer token; the real SDK additionally
// RSA-signs requests, which is account-setup specific and left to the
// caller's http.Client transport via options on http.Client if needed.
func NewTigerAdapter(baseURL, apiKey, accountID string) *TigerAdapter {
	if baseURL == "" {
		baseURL = "https://openapi.tigerfintech.com/gateway"
	}
	hc := newHTTPClient(baseURL, 10*time.Second)
	hc.client.Transport = &bearerTransport{key: apiKey, next: http.DefaultTransport}
	return &TigerAdapter{http: hc, accountID: accountID}
}

// bearerTransport attaches the Tiger Open API token to every outbound
// request. The real SDK additionally RSA-signs each request; that step is
// account-provisioning specific and left out of this transport.
type bearerTransport struct {
	key  string
	next http.RoundTripper
}

func (b *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+b.key)
	return b.next.RoundTrip(clone)
}

func (t *TigerAdapter) Name() string { return "tiger" }

func (t *TigerAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{
			adapter.DTQuote, adapter.DTHistory, adapter.DTFundamentals, adapter.DTInfo,
			adapter.DTOptionsChain, adapter.DTOptionsExpirations, adapter.DTEarnings,
		},
		Markets: []market.Market{market.US, market.HK, market.CN},
	}
}

func (t *TigerAdapter) SupportsSymbol(symbol string) bool { return symbol != "" }

func (t *TigerAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTQuote:
		return 15 * time.Second
	case adapter.DTHistory:
		return 5 * time.Minute
	case adapter.DTFundamentals, adapter.DTInfo:
		return time.Hour
	case adapter.DTOptionsExpirations:
		return 10 * time.Minute
	case adapter.DTOptionsChain:
		return time.Minute
	case adapter.DTEarnings:
		return 6 * time.Hour
	default:
		return 5 * time.Minute
	}
}

func (t *TigerAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	return adapter.StatusHealthy
}

type tigerQuoteResponse struct {
	Symbol    string  `json:"symbol"`
	Latest    float64 `json:"latestPrice"`
	PreClose  float64 `json:"preClose"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

func (t *TigerAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	var out tigerQuoteResponse
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/brief", q, &out); err != nil {
		return nil, err
	}
	if out.Latest == 0 {
		return nil, nil
	}
	ts := time.Now()
	if out.Timestamp > 0 {
		ts = time.UnixMilli(out.Timestamp)
	}
	return &adapter.Quote{
		Symbol:        symbol,
		CurrentPrice:  out.Latest,
		PreviousClose: out.PreClose,
		Open:          out.Open,
		DayHigh:       out.High,
		DayLow:        out.Low,
		Volume:        out.Volume,
		Timestamp:     ts,
		Source:        t.Name(),
	}, nil
}

type tigerBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func (t *TigerAdapter) GetHistory(ctx context.Context, symbol string, period string) (*adapter.HistoryData, error) {
	var out struct {
		Bars []tigerBar `json:"items"`
	}
	q := url.Values{"symbol": {symbol}, "period": {period}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/kline", q, &out); err != nil {
		return nil, err
	}
	if len(out.Bars) == 0 {
		return nil, nil
	}
	bars := make([]adapter.HistoryBar, len(out.Bars))
	for i, b := range out.Bars {
		bars[i] = adapter.HistoryBar{
			Time: time.UnixMilli(b.Time).UTC(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		}
	}
	return &adapter.HistoryData{Symbol: symbol, Bars: bars, Source: t.Name()}, nil
}

func (t *TigerAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	var out struct {
		PE            float64 `json:"peRatio"`
		PB            float64 `json:"pbRatio"`
		MarketCap     float64 `json:"marketCap"`
		DividendYield float64 `json:"dividendYield"`
	}
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/fundamentals", q, &out); err != nil {
		return nil, err
	}
	if out.PE == 0 && out.MarketCap == 0 {
		return nil, nil
	}
	return &adapter.Fundamentals{
		Symbol:        symbol,
		TrailingPE:    out.PE,
		PriceToBook:   out.PB,
		MarketCap:     out.MarketCap,
		DividendYield: out.DividendYield,
		Source:        t.Name(),
	}, nil
}

func (t *TigerAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	var out struct {
		Name     string `json:"name"`
		Exchange string `json:"exchange"`
		Currency string `json:"currency"`
	}
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/contract", q, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		return nil, nil
	}
	return &adapter.CompanyInfo{Symbol: symbol, Name: out.Name, Exchange: out.Exchange, Currency: out.Currency, Source: t.Name()}, nil
}

func (t *TigerAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	var out struct {
		Dates []string `json:"expirations"`
	}
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/option/expirations", q, &out); err != nil {
		return nil, err
	}
	if len(out.Dates) == 0 {
		return nil, nil
	}
	return out.Dates, nil
}

func (t *TigerAdapter) GetOptionsChain(ctx context.Context, symbol string, expiry string) (*adapter.OptionsChainData, error) {
	var out struct {
		Calls []tigerOptionLeg `json:"calls"`
		Puts  []tigerOptionLeg `json:"puts"`
	}
	q := url.Values{"symbol": {symbol}, "expiry": {expiry}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/option/chain", q, &out); err != nil {
		return nil, err
	}
	if len(out.Calls) == 0 && len(out.Puts) == 0 {
		return nil, nil
	}
	return &adapter.OptionsChainData{
		Symbol: symbol, ExpiryDate: expiry,
		Calls:  convertTigerLegs(out.Calls, "call"),
		Puts:   convertTigerLegs(out.Puts, "put"),
		Source: t.Name(),
	}, nil
}

type tigerOptionLeg struct {
	Strike       float64 `json:"strike"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"openInterest"`
	IV           float64 `json:"impliedVol"`
	Identifier   string  `json:"identifier"`
}

func convertTigerLegs(legs []tigerOptionLeg, optType string) []adapter.OptionLeg {
	out := make([]adapter.OptionLeg, len(legs))
	for i, l := range legs {
		out[i] = adapter.OptionLeg{
			Strike: l.Strike, Bid: l.Bid, Ask: l.Ask, LastPrice: l.Last,
			Volume: l.Volume, OpenInterest: l.OpenInterest, ImpliedVolatility: l.IV,
			OptionType: optType, Identifier: l.Identifier,
		}
	}
	return out
}

func (t *TigerAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	var out struct {
		NextDate string  `json:"nextEarningsDate"`
		EPS      float64 `json:"lastEpsActual"`
		EPSEst   float64 `json:"lastEpsEstimate"`
	}
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/earnings", q, &out); err != nil {
		return nil, err
	}
	if out.NextDate == "" {
		return nil, nil
	}
	next, _ := time.Parse("2006-01-02", out.NextDate)
	return &adapter.EarningsData{
		Symbol: symbol, NextEarningsDate: next, LastEPSActual: out.EPS, LastEPSEstimate: out.EPSEst, Source: t.Name(),
	}, nil
}

// GetMarginRate returns the symbol's margin requirement as a decimal
// fraction (e.g. 0.25 for 25%). Mirrors get_margin_rate's fallback from a
// margin_rate column to a margin_requirement column, normalizing a
// requirement expressed as a percentage (>1) down to a fraction.
func (t *TigerAdapter) GetMarginRate(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		MarginRate        float64 `json:"marginRate"`
		MarginRequirement float64 `json:"marginRequirement"`
	}
	q := url.Values{"symbol": {symbol}, "account": {t.accountID}}
	if err := t.http.getJSON(ctx, "/quote/margin", q, &out); err != nil {
		return 0, err
	}
	if out.MarginRate > 0 {
		return out.MarginRate, nil
	}
	if out.MarginRequirement > 0 {
		if out.MarginRequirement > 1 {
			return out.MarginRequirement / 100.0, nil
		}
		return out.MarginRequirement, nil
	}
	return 0, fmt.Errorf("providers: no margin data for %s", symbol)
}
