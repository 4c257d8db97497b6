package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// YFinanceAdapter is the general-purpose provider for US and HK markets,
// backed by the Yahoo Finance chart/quoteSummary/options JSON endpoints.
//
// Grounded on adapters/yfinance_adapter.py: same field mapping
// (regularMarketPrice for the quote, falling back to the last history
// close; trailingPE/forwardPE/priceToBook/etc for fundamentals),
// same "macro tickers have no options" rule, same broad symbol support
// (SupportsSymbol always true — narrowing happens at the router via
// market coverage, not here).
type YFinanceAdapter struct {
	http httpClient
}

// NewYFinanceAdapter creates a YFinanceAdapter. baseURL defaults to the
// public query1.finance.yahoo.com host when empty.
func NewYFinanceAdapter(baseURL string) *YFinanceAdapter {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YFinanceAdapter{http: newHTTPClient(baseURL, 10*time.Second)}
}

func (y *YFinanceAdapter) Name() string { return "yfinance" }

func (y *YFinanceAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{
			adapter.DTQuote, adapter.DTHistory, adapter.DTInfo, adapter.DTFundamentals,
			adapter.DTOptionsChain, adapter.DTOptionsExpirations, adapter.DTEarnings, adapter.DTMacro,
		},
		Markets: []market.Market{market.US, market.HK},
	}
}

func (y *YFinanceAdapter) SupportsSymbol(symbol string) bool { return symbol != "" }

func (y *YFinanceAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTQuote:
		return 30 * time.Second
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
	case adapter.DTMacro:
		return time.Minute
	default:
		return 5 * time.Minute
	}
}

func (y *YFinanceAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	return adapter.StatusHealthy
}

type yfChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				Currency           string  `json:"currency"`
				ExchangeName       string  `json:"exchangeName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

func (y *YFinanceAdapter) fetchChart(ctx context.Context, symbol, rangeParam string) (*yfChartResponse, error) {
	var out yfChartResponse
	q := url.Values{"range": {rangeParam}, "interval": {"1d"}}
	if err := y.http.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), q, &out); err != nil {
		return nil, err
	}
	if len(out.Chart.Result) == 0 {
		return nil, nil
	}
	return &out, nil
}

func (y *YFinanceAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	chart, err := y.fetchChart(ctx, symbol, "1d")
	if err != nil {
		return nil, err
	}
	if chart == nil {
		return nil, nil
	}
	res := chart.Chart.Result[0]
	price := res.Meta.RegularMarketPrice
	if price == 0 && len(res.Indicators.Quote) > 0 {
		if closes := res.Indicators.Quote[0].Close; len(closes) > 0 {
			price = closes[len(closes)-1]
		}
	}
	if price == 0 {
		return nil, nil
	}

	q := &adapter.Quote{
		Symbol:        symbol,
		CurrentPrice:  price,
		PreviousClose: res.Meta.PreviousClose,
		Timestamp:     time.Now(),
		Source:        y.Name(),
	}
	if len(res.Indicators.Quote) > 0 {
		qd := res.Indicators.Quote[0]
		if n := len(qd.Open); n > 0 {
			q.Open = qd.Open[n-1]
		}
		if n := len(qd.High); n > 0 {
			q.DayHigh = qd.High[n-1]
		}
		if n := len(qd.Low); n > 0 {
			q.DayLow = qd.Low[n-1]
		}
		if n := len(qd.Volume); n > 0 {
			q.Volume = qd.Volume[n-1]
		}
	}
	return q, nil
}

func (y *YFinanceAdapter) GetHistory(ctx context.Context, symbol string, period string) (*adapter.HistoryData, error) {
	if period == "" {
		period = "1mo"
	}
	chart, err := y.fetchChart(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	if chart == nil {
		return nil, nil
	}
	res := chart.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 || len(res.Timestamp) == 0 {
		return nil, nil
	}
	qd := res.Indicators.Quote[0]

	bars := make([]adapter.HistoryBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		bar := adapter.HistoryBar{Time: time.Unix(ts, 0).UTC()}
		if i < len(qd.Open) {
			bar.Open = qd.Open[i]
		}
		if i < len(qd.High) {
			bar.High = qd.High[i]
		}
		if i < len(qd.Low) {
			bar.Low = qd.Low[i]
		}
		if i < len(qd.Close) {
			bar.Close = qd.Close[i]
		}
		if i < len(qd.Volume) {
			bar.Volume = qd.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &adapter.HistoryData{Symbol: symbol, Bars: bars, Source: y.Name()}, nil
}

type yfQuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector      string `json:"sector"`
				Industry    string `json:"industry"`
				Country     string `json:"country"`
				LongSummary string `json:"longBusinessSummary"`
			} `json:"assetProfile"`
			Price struct {
				ShortName    string `json:"shortName"`
				LongName     string `json:"longName"`
				ExchangeName string `json:"exchangeName"`
				Currency     string `json:"currency"`
			} `json:"price"`
			DefaultKeyStatistics struct {
				ForwardPE   yfNumber `json:"forwardPE"`
				PriceToBook yfNumber `json:"priceToBook"`
			} `json:"defaultKeyStatistics"`
			SummaryDetail struct {
				TrailingPE    yfNumber `json:"trailingPE"`
				PriceToSales  yfNumber `json:"priceToSalesTrailing12Months"`
				DividendYield yfNumber `json:"dividendYield"`
				MarketCap     yfNumber `json:"marketCap"`
			} `json:"summaryDetail"`
			FinancialData struct {
				ProfitMargins  yfNumber `json:"profitMargins"`
				ReturnOnEquity yfNumber `json:"returnOnEquity"`
				DebtToEquity   yfNumber `json:"debtToEquity"`
			} `json:"financialData"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// yfNumber decodes Yahoo's "{raw, fmt}" number wrapper objects.
type yfNumber struct {
	Raw float64 `json:"raw"`
}

func (y *YFinanceAdapter) fetchQuoteSummary(ctx context.Context, symbol string, modules string) (*yfQuoteSummaryResponse, error) {
	var out yfQuoteSummaryResponse
	q := url.Values{"modules": {modules}}
	path := "/v10/finance/quoteSummary/" + url.PathEscape(symbol)
	if err := y.http.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	if len(out.QuoteSummary.Result) == 0 {
		return nil, nil
	}
	return &out, nil
}

func (y *YFinanceAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	resp, err := y.fetchQuoteSummary(ctx, symbol, "assetProfile,price")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	r := resp.QuoteSummary.Result[0]
	name := r.Price.LongName
	if name == "" {
		name = r.Price.ShortName
	}
	if name == "" {
		name = symbol
	}
	return &adapter.CompanyInfo{
		Symbol:      symbol,
		Name:        name,
		Sector:      r.AssetProfile.Sector,
		Industry:    r.AssetProfile.Industry,
		Country:     r.AssetProfile.Country,
		Exchange:    r.Price.ExchangeName,
		Currency:    r.Price.Currency,
		Description: r.AssetProfile.LongSummary,
		Source:      y.Name(),
	}, nil
}

func (y *YFinanceAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	resp, err := y.fetchQuoteSummary(ctx, symbol, "summaryDetail,defaultKeyStatistics,financialData")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	r := resp.QuoteSummary.Result[0]
	return &adapter.Fundamentals{
		Symbol:         symbol,
		TrailingPE:     r.SummaryDetail.TrailingPE.Raw,
		ForwardPE:      r.DefaultKeyStatistics.ForwardPE.Raw,
		PriceToBook:    r.DefaultKeyStatistics.PriceToBook.Raw,
		PriceToSales:   r.SummaryDetail.PriceToSales.Raw,
		DividendYield:  r.SummaryDetail.DividendYield.Raw,
		MarketCap:      r.SummaryDetail.MarketCap.Raw,
		ProfitMargins:  r.FinancialData.ProfitMargins.Raw,
		ReturnOnEquity: r.FinancialData.ReturnOnEquity.Raw,
		DebtToEquity:   r.FinancialData.DebtToEquity.Raw,
		Source:         y.Name(),
	}, nil
}

func (y *YFinanceAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	if market.IsMacroTicker(symbol) {
		return nil, nil
	}
	var out struct {
		OptionChain struct {
			Result []struct {
				ExpirationDates []int64 `json:"expirationDates"`
			} `json:"result"`
		} `json:"optionChain"`
	}
	if err := y.http.getJSON(ctx, "/v7/finance/options/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	if len(out.OptionChain.Result) == 0 {
		return nil, nil
	}
	dates := out.OptionChain.Result[0].ExpirationDates
	if len(dates) == 0 {
		return nil, nil
	}
	strs := make([]string, len(dates))
	for i, d := range dates {
		strs[i] = time.Unix(d, 0).UTC().Format("2006-01-02")
	}
	return strs, nil
}

func (y *YFinanceAdapter) GetOptionsChain(ctx context.Context, symbol string, expiry string) (*adapter.OptionsChainData, error) {
	if market.IsMacroTicker(symbol) {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return nil, fmt.Errorf("providers: invalid expiry %q: %w", expiry, err)
	}

	var out struct {
		OptionChain struct {
			Result []struct {
				Options []struct {
					Calls []yfOptionLeg `json:"calls"`
					Puts  []yfOptionLeg `json:"puts"`
				} `json:"options"`
			} `json:"result"`
		} `json:"optionChain"`
	}
	q := url.Values{"date": {strconv.FormatInt(t.Unix(), 10)}}
	if err := y.http.getJSON(ctx, "/v7/finance/options/"+url.PathEscape(symbol), q, &out); err != nil {
		return nil, err
	}
	if len(out.OptionChain.Result) == 0 || len(out.OptionChain.Result[0].Options) == 0 {
		return nil, nil
	}
	opts := out.OptionChain.Result[0].Options[0]
	if len(opts.Calls) == 0 && len(opts.Puts) == 0 {
		return nil, nil
	}

	return &adapter.OptionsChainData{
		Symbol:     symbol,
		ExpiryDate: expiry,
		Calls:      convertLegs(opts.Calls, "call"),
		Puts:       convertLegs(opts.Puts, "put"),
		Source:     y.Name(),
	}, nil
}

type yfOptionLeg struct {
	Strike            yfNumber `json:"strike"`
	Bid               yfNumber `json:"bid"`
	Ask               yfNumber `json:"ask"`
	LastPrice         yfNumber `json:"lastPrice"`
	Volume            yfNumber `json:"volume"`
	OpenInterest      yfNumber `json:"openInterest"`
	ImpliedVolatility yfNumber `json:"impliedVolatility"`
	ContractSymbol    string   `json:"contractSymbol"`
}

func convertLegs(legs []yfOptionLeg, optType string) []adapter.OptionLeg {
	out := make([]adapter.OptionLeg, len(legs))
	for i, l := range legs {
		out[i] = adapter.OptionLeg{
			Strike:            l.Strike.Raw,
			Bid:               l.Bid.Raw,
			Ask:               l.Ask.Raw,
			LastPrice:         l.LastPrice.Raw,
			Volume:            int64(l.Volume.Raw),
			OpenInterest:      int64(l.OpenInterest.Raw),
			ImpliedVolatility: l.ImpliedVolatility.Raw,
			OptionType:        optType,
			Identifier:        l.ContractSymbol,
		}
	}
	return out
}

func (y *YFinanceAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	resp, err := y.fetchQuoteSummary(ctx, symbol, "earningsTrend,calendarEvents")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	// Yahoo's earnings calendar payload shape varies enough across
	// symbols that we only surface what the shared quoteSummary response
	// decodes reliably: the symbol and source. Richer EPS/date fields are
	// populated by the broker adapter (tiger) where available.
	return &adapter.EarningsData{Symbol: symbol, Source: y.Name()}, nil
}
