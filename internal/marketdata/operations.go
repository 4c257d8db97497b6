package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
)

// GetQuote fetches a real-time (or latest-available) quote for symbol,
// using cache, deduplication, and automatic provider failover.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	v, _, err := runFailover(ctx, s, adapter.DTQuote, symbol, "",
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTQuote) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			q, err := a.GetQuote(ctx, symbol)
			if err != nil || q == nil {
				return nil, err
			}
			return q, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.Quote), nil
}

// GetHistory fetches normalized OHLCV history for symbol over period
// (e.g. "1mo", "1y").
func (s *Service) GetHistory(ctx context.Context, symbol, period string) (*adapter.HistoryData, error) {
	v, _, err := runFailover(ctx, s, adapter.DTHistory, symbol, period,
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTHistory) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			h, err := a.GetHistory(ctx, symbol, period)
			if err != nil || h == nil {
				return nil, err
			}
			return h, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.HistoryData), nil
}

// GetFundamentals fetches valuation/fundamentals data for symbol.
func (s *Service) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	v, _, err := runFailover(ctx, s, adapter.DTFundamentals, symbol, "",
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTFundamentals) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			f, err := a.GetFundamentals(ctx, symbol)
			if err != nil || f == nil {
				return nil, err
			}
			return f, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.Fundamentals), nil
}

// GetInfo fetches slow-moving descriptive company metadata for symbol.
func (s *Service) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	v, _, err := runFailover(ctx, s, adapter.DTInfo, symbol, "",
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTInfo) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			i, err := a.GetInfo(ctx, symbol)
			if err != nil || i == nil {
				return nil, err
			}
			return i, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.CompanyInfo), nil
}

// GetOptionsExpirations fetches the list of available option expiry dates.
func (s *Service) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	v, _, err := runFailover(ctx, s, adapter.DTOptionsExpirations, symbol, "",
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTOptionsExpirations) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			exps, err := a.GetOptionsExpirations(ctx, symbol)
			if err != nil || len(exps) == 0 {
				return nil, err
			}
			return exps, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]string), nil
}

// GetOptionsChain fetches the normalized option chain for symbol at expiry.
func (s *Service) GetOptionsChain(ctx context.Context, symbol, expiry string) (*adapter.OptionsChainData, error) {
	v, _, err := runFailover(ctx, s, adapter.DTOptionsChain, symbol, expiry,
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTOptionsChain) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			c, err := a.GetOptionsChain(ctx, symbol, expiry)
			if err != nil || c == nil {
				return nil, err
			}
			return c, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.OptionsChainData), nil
}

// GetEarnings fetches the next/last earnings event for symbol.
func (s *Service) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	v, _, err := runFailover(ctx, s, adapter.DTEarnings, symbol, "",
		func(a adapter.Adapter) time.Duration { return a.TTL(adapter.DTEarnings) },
		func(ctx context.Context, a adapter.Adapter) (any, error) {
			e, err := a.GetEarnings(ctx, symbol)
			if err != nil || e == nil {
				return nil, err
			}
			return e, nil
		})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*adapter.EarningsData), nil
}

// TickerData is the backward-compatible bundle mirroring yfinance's
// Ticker().info style composite payload, assembled from quote + info +
// fundamentals in one call.
type TickerData struct {
	Quote        *adapter.Quote
	Info         *adapter.CompanyInfo
	Fundamentals *adapter.Fundamentals
}

// GetTickerData composes quote, info, and fundamentals into one payload,
// tolerating partial failures (a data type with no provider data leaves
// that field nil rather than failing the whole call).
func (s *Service) GetTickerData(ctx context.Context, symbol string) (*TickerData, error) {
	td := &TickerData{}

	quote, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker data %s: quote: %w", symbol, err)
	}
	td.Quote = quote

	if info, err := s.GetInfo(ctx, symbol); err == nil {
		td.Info = info
	}
	if fund, err := s.GetFundamentals(ctx, symbol); err == nil {
		td.Fundamentals = fund
	}
	return td, nil
}

// GetHistoryTable is a thin alias over GetHistory for callers that think
// in terms of a tabular OHLCV result rather than a domain object.
func (s *Service) GetHistoryTable(ctx context.Context, symbol, period string) (*adapter.HistoryData, error) {
	return s.GetHistory(ctx, symbol, period)
}

// GetMarginRate fetches a broker-reported margin rate for symbol. Unlike
// every other operation, this has exactly one valid source (the broker
// adapter) and never falls back to a different provider class, so it
// bypasses the generic candidate loop and calls the registered broker
// adapter directly.
func (s *Service) GetMarginRate(ctx context.Context, symbol string, brokerAdapterName string) (float64, error) {
	s.mu.RLock()
	reg, ok := s.registrations[brokerAdapterName]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("marketdata: broker adapter %q not registered", brokerAdapterName)
	}

	broker, ok := reg.adapter.(MarginRateProvider)
	if !ok {
		return 0, fmt.Errorf("marketdata: adapter %q does not provide margin rates", brokerAdapterName)
	}

	var rate float64
	call := func(ctx context.Context) error {
		r, err := broker.GetMarginRate(ctx, symbol)
		rate = r
		return err
	}
	if reg.guard != nil {
		if err := reg.guard.Execute(ctx, call); err != nil {
			return 0, err
		}
		return rate, nil
	}
	if err := call(ctx); err != nil {
		return 0, err
	}
	return rate, nil
}

// MarginRateProvider is an optional capability a broker-class adapter
// (e.g. Tiger) may implement in addition to the base Adapter interface.
type MarginRateProvider interface {
	GetMarginRate(ctx context.Context, symbol string) (float64, error)
}
