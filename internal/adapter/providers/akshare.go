package providers

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// productCNMap maps a commodity product code to the Chinese product name
// the upstream data source keys its endpoints by.
var productCNMap = map[string]string{
	"au": "黄金期权",
	"ag": "白银期权",
	"cu": "沪铜期权",
	"al": "沪铝期权",
	"m":  "豆粕期权",
}

// AkShareAdapter is the COMMODITY-market adapter for five futures-options
// products (gold, silver, copper, aluminum, soybean meal). There is no
// direct "quote" endpoint: a quote is derived from the dominant contract's
// options chain underlying price.
//
// Grounded on adapters/akshare_commodity_adapter.py: the five-product
// PRODUCT_CN_MAP, extract_product's symbol parsing (lowercases, strips a
// recognized exchange prefix, keeps only letters), get_quote deriving its
// price from the first (dominant, highest-open-interest) contract's
// options chain, and get_history/get_info/get_fundamentals/get_earnings
// being unsupported for this product family.
type AkShareAdapter struct {
	http httpClient
}

func NewAkShareAdapter(baseURL string) *AkShareAdapter {
	if baseURL == "" {
		baseURL = "https://akshare-gateway.internal"
	}
	return &AkShareAdapter{http: newHTTPClient(baseURL, 15*time.Second)}
}

func (a *AkShareAdapter) Name() string { return "akshare_commodity" }

func (a *AkShareAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{adapter.DTQuote, adapter.DTOptionsChain, adapter.DTOptionsExpirations},
		Markets:   []market.Market{market.Commodity},
	}
}

func (a *AkShareAdapter) SupportsSymbol(symbol string) bool {
	_, ok := productCNMap[extractProduct(symbol)]
	return ok
}

// extractProduct strips a recognized exchange prefix ("SHFE.au2604" ->
// "au2604") and keeps only letters, yielding the bare product code.
func extractProduct(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if idx := strings.Index(s, "."); idx >= 0 {
		prefix, rest := s[:idx], s[idx+1:]
		switch prefix {
		case "shfe", "dce", "czce", "ine":
			s = rest
		}
	}
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (a *AkShareAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTQuote:
		return time.Minute
	case adapter.DTOptionsExpirations:
		return 15 * time.Minute
	case adapter.DTOptionsChain:
		return 2 * time.Minute
	default:
		return 5 * time.Minute
	}
}

func (a *AkShareAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	return adapter.StatusHealthy
}

type akContractList struct {
	Contracts []string `json:"contracts"`
}

func (a *AkShareAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	product := extractProduct(symbol)
	cnName, ok := productCNMap[product]
	if !ok {
		return nil, nil
	}
	var out akContractList
	q := url.Values{"symbol": {cnName}}
	if err := a.http.getJSON(ctx, "/option_commodity_contract_sina", q, &out); err != nil {
		return nil, err
	}
	if len(out.Contracts) == 0 {
		return nil, nil
	}
	return out.Contracts, nil
}

type akOptionRow struct {
	Strike       float64 `json:"strike"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	LastPrice    float64 `json:"lastPrice"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"openInterest"`
}

type akOptionTable struct {
	UnderlyingPrice float64       `json:"underlyingPrice"`
	Calls           []akOptionRow `json:"calls"`
	Puts            []akOptionRow `json:"puts"`
}

func (a *AkShareAdapter) GetOptionsChain(ctx context.Context, symbol string, expiry string) (*adapter.OptionsChainData, error) {
	product := extractProduct(symbol)
	cnName, ok := productCNMap[product]
	if !ok {
		return nil, nil
	}
	var out akOptionTable
	q := url.Values{"symbol": {cnName}, "contract": {expiry}}
	if err := a.http.getJSON(ctx, "/option_commodity_contract_table_sina", q, &out); err != nil {
		return nil, err
	}
	if len(out.Calls) == 0 && len(out.Puts) == 0 {
		return nil, nil
	}
	return &adapter.OptionsChainData{
		Symbol: product, ExpiryDate: expiry,
		Calls:  convertAkLegs(out.Calls, "call"),
		Puts:   convertAkLegs(out.Puts, "put"),
		Source: a.Name(),
	}, nil
}

func convertAkLegs(rows []akOptionRow, optType string) []adapter.OptionLeg {
	legs := make([]adapter.OptionLeg, len(rows))
	for i, r := range rows {
		legs[i] = adapter.OptionLeg{
			Strike: r.Strike, Bid: r.Bid, Ask: r.Ask, LastPrice: r.LastPrice,
			Volume: r.Volume, OpenInterest: r.OpenInterest, OptionType: optType,
		}
	}
	return legs
}

// GetQuote derives a price from the dominant (first, highest-open-interest)
// contract's options chain underlying price — there is no direct quote
// endpoint for these commodity products.
func (a *AkShareAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	product := extractProduct(symbol)
	cnName, ok := productCNMap[product]
	if !ok {
		return nil, nil
	}
	contracts, err := a.GetOptionsExpirations(ctx, symbol)
	if err != nil || len(contracts) == 0 {
		return nil, err
	}
	var raw akOptionTable
	q := url.Values{"symbol": {cnName}, "contract": {contracts[0]}}
	if err := a.http.getJSON(ctx, "/option_commodity_contract_table_sina", q, &raw); err != nil {
		return nil, err
	}
	if raw.UnderlyingPrice <= 0 {
		return nil, nil
	}
	return &adapter.Quote{Symbol: product, CurrentPrice: raw.UnderlyingPrice, Timestamp: time.Now(), Source: a.Name()}, nil
}

// GetHistory, GetFundamentals, GetInfo, and GetEarnings are unsupported for
// this product family (see Capabilities) and always report no data.
func (a *AkShareAdapter) GetHistory(ctx context.Context, symbol, period string) (*adapter.HistoryData, error) {
	return nil, nil
}
func (a *AkShareAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	return nil, nil
}
func (a *AkShareAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	return nil, nil
}
func (a *AkShareAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	return nil, nil
}
