// Package adapter defines the uniform contract every market-data provider
// implements. A Provider Adapter is polymorphic over a capability set
// (quote, history, fundamentals, info, options expirations, options chain,
// earnings, health) rather than requiring every adapter to implement every
// method meaningfully: callers consult SupportedDataTypes/SupportedMarkets
// (data, not code) before invoking an operation.
package adapter

import (
	"context"
	"time"

	"github.com/alphagbm/analysiscore/internal/market"
)

// DataType enumerates the kinds of market data the service routes.
type DataType string

const (
	DTQuote              DataType = "quote"
	DTHistory            DataType = "history"
	DTFundamentals       DataType = "fundamentals"
	DTInfo               DataType = "info"
	DTOptionsExpirations DataType = "options_expirations"
	DTOptionsChain       DataType = "options_chain"
	DTEarnings           DataType = "earnings"
	DTMacro              DataType = "macro"
)

// ProviderStatus is the adapter's self-reported operational state.
type ProviderStatus string

const (
	StatusHealthy     ProviderStatus = "healthy"
	StatusDegraded    ProviderStatus = "degraded"
	StatusUnavailable ProviderStatus = "unavailable"
)

// Quote is a real-time (or latest-available) price snapshot.
type Quote struct {
	Symbol        string
	CurrentPrice  float64
	PreviousClose float64
	Open          float64
	DayHigh       float64
	DayLow        float64
	Volume        int64
	Timestamp     time.Time
	Source        string
}

// Fundamentals carries yfinance-compatible valuation fields.
type Fundamentals struct {
	Symbol           string
	TrailingPE       float64
	ForwardPE        float64
	PriceToBook      float64
	PriceToSales     float64
	DividendYield    float64
	MarketCap        float64
	EPS              float64
	ProfitMargins    float64
	ReturnOnEquity   float64
	DebtToEquity     float64
	Source           string
}

// CompanyInfo is slow-moving descriptive metadata.
type CompanyInfo struct {
	Symbol      string
	Name        string
	Sector      string
	Industry    string
	Country     string
	Exchange    string
	Currency    string
	Description string
	Source      string
}

// HistoryBar is one normalized OHLCV row.
type HistoryBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// HistoryData is a normalized OHLCV table for one symbol.
type HistoryData struct {
	Symbol string
	Bars   []HistoryBar
	Source string
}

// OptionLeg is one normalized option-chain row.
type OptionLeg struct {
	Strike            float64
	Bid               float64
	Ask               float64
	LastPrice         float64
	Volume            int64
	OpenInterest      int64
	ImpliedVolatility float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	OptionType        string // "call" or "put"
	Identifier        string
}

// OptionsChainData is a normalized option chain for one expiry.
type OptionsChainData struct {
	Symbol     string
	ExpiryDate string
	Calls      []OptionLeg
	Puts       []OptionLeg
	Source     string
}

// EarningsData carries the next/last earnings event for a symbol.
type EarningsData struct {
	Symbol            string
	NextEarningsDate  time.Time
	LastEPSActual     float64
	LastEPSEstimate   float64
	Source            string
}

// Capabilities advertises what a concrete adapter can do. The router
// treats this as data — it never type-switches on the adapter's concrete
// type to decide eligibility.
type Capabilities struct {
	DataTypes []DataType
	Markets   []market.Market
}

// Has reports whether dt is among the advertised data types.
func (c Capabilities) Has(dt DataType) bool {
	for _, x := range c.DataTypes {
		if x == dt {
			return true
		}
	}
	return false
}

// Covers reports whether m is among the advertised markets.
func (c Capabilities) Covers(m market.Market) bool {
	for _, x := range c.Markets {
		if x == m {
			return true
		}
	}
	return false
}

// Adapter is the uniform interface every market-data provider implements.
//
// Implementations must not return an error for "symbol has no data" —
// that case is a nil value with a nil error. Errors are reserved for
// transport/rate/unknown failures so the protection layer can classify
// them; SupportsSymbol is a cheap pre-filter, not a network call.
type Adapter interface {
	Name() string
	Capabilities() Capabilities
	SupportsSymbol(symbol string) bool

	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetHistory(ctx context.Context, symbol string, period string) (*HistoryData, error)
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
	GetInfo(ctx context.Context, symbol string) (*CompanyInfo, error)
	GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionsChain(ctx context.Context, symbol string, expiry string) (*OptionsChainData, error)
	GetEarnings(ctx context.Context, symbol string) (*EarningsData, error)

	// TTL returns this adapter's cache TTL for a given data type.
	TTL(dt DataType) time.Duration

	// HealthCheck reports the adapter's current self-assessed status,
	// independent of the protection layer's circuit/rate-limit state.
	HealthCheck(ctx context.Context) ProviderStatus
}
