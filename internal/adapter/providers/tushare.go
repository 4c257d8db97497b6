package providers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/market"
)

// TushareAdapter is the CN A-share provider, talking to the Tushare Pro
// HTTP API (a single POST endpoint dispatching on an api_name field) rather
// than a client SDK.
//
// Grounded on adapters/tushare_adapter.py: normalize_symbol's .SS->.SH
// rewrite and numeric-prefix exchange inference, the daily/daily_basic/
// stock_basic field names (close, pre_close, vol, pe_ttm, pb, dv_ttm, ...),
// and get_fundamentals's "return a minimal record rather than fail" degraded
// path when daily_basic has no rows for the lookback window.
type TushareAdapter struct {
	http  httpClient
	token string
}

func NewTushareAdapter(token string) *TushareAdapter {
	return &TushareAdapter{http: newHTTPClient("http://api.tushare.pro", 15*time.Second), token: token}
}

func (t *TushareAdapter) Name() string { return "tushare" }

func (t *TushareAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		DataTypes: []adapter.DataType{adapter.DTQuote, adapter.DTHistory, adapter.DTFundamentals, adapter.DTInfo},
		Markets:   []market.Market{market.CN},
	}
}

// SupportsSymbol requires an .SH/.SS/.SZ suffix, or a bare 6-digit code
// (auto-converted by normalizeSymbol).
func (t *TushareAdapter) SupportsSymbol(symbol string) bool {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, ".SH") || strings.HasSuffix(upper, ".SS") || strings.HasSuffix(upper, ".SZ") {
		return true
	}
	return len(symbol) == 6 && isDigits(symbol)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeSymbol converts a bare or yfinance-style code to Tushare's
// "NNNNNN.SH"/"NNNNNN.SZ" format.
func normalizeSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, ".SH") || strings.HasSuffix(upper, ".SZ") {
		return upper
	}
	if strings.HasSuffix(upper, ".SS") {
		return strings.Replace(upper, ".SS", ".SH", 1)
	}
	if len(symbol) == 6 && isDigits(symbol) {
		switch symbol[0] {
		case '6', '5', '9':
			return symbol + ".SH"
		default:
			return symbol + ".SZ"
		}
	}
	return upper
}

func (t *TushareAdapter) TTL(dt adapter.DataType) time.Duration {
	switch dt {
	case adapter.DTQuote:
		return 30 * time.Second
	case adapter.DTHistory:
		return 10 * time.Minute
	case adapter.DTFundamentals, adapter.DTInfo:
		return time.Hour
	default:
		return 10 * time.Minute
	}
}

func (t *TushareAdapter) HealthCheck(ctx context.Context) adapter.ProviderStatus {
	if t.token == "" {
		return adapter.StatusUnavailable
	}
	return adapter.StatusHealthy
}

type tushareRequest struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// rows converts the response's parallel fields/items arrays into a slice
// of field-name-keyed maps.
func (r *tushareResponse) rows() []map[string]any {
	if r.Data == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Data.Items))
	for _, item := range r.Data.Items {
		row := make(map[string]any, len(r.Data.Fields))
		for i, f := range r.Data.Fields {
			if i < len(item) {
				row[f] = item[i]
			}
		}
		out = append(out, row)
	}
	return out
}

func (t *TushareAdapter) call(ctx context.Context, apiName string, params map[string]any, fields string) (*tushareResponse, error) {
	if t.token == "" {
		return nil, nil
	}
	req := tushareRequest{APIName: apiName, Token: t.token, Params: params, Fields: fields}
	var resp tushareResponse
	if err := t.http.postJSON(ctx, "/", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &rateLimitError{provider: t.Name(), detail: resp.Msg}
	}
	return &resp, nil
}

func tsFloat(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func tsString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (t *TushareAdapter) dateWindow() (string, string) {
	end := time.Now()
	start := end.AddDate(0, 0, -10)
	return start.Format("20060102"), end.Format("20060102")
}

func (t *TushareAdapter) GetQuote(ctx context.Context, symbol string) (*adapter.Quote, error) {
	tsSymbol := normalizeSymbol(symbol)
	start, end := t.dateWindow()
	resp, err := t.call(ctx, "daily", map[string]any{"ts_code": tsSymbol, "start_date": start, "end_date": end},
		"ts_code,trade_date,open,high,low,close,pre_close,vol")
	if err != nil || resp == nil {
		return nil, err
	}
	rows := resp.rows()
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[0]
	price := tsFloat(latest, "close")
	if price == 0 {
		return nil, nil
	}
	return &adapter.Quote{
		Symbol: symbol, CurrentPrice: price, PreviousClose: tsFloat(latest, "pre_close"),
		Open: tsFloat(latest, "open"), DayHigh: tsFloat(latest, "high"), DayLow: tsFloat(latest, "low"),
		Volume: int64(tsFloat(latest, "vol")), Timestamp: time.Now(), Source: t.Name(),
	}, nil
}

func (t *TushareAdapter) GetHistory(ctx context.Context, symbol string, period string) (*adapter.HistoryData, error) {
	tsSymbol := normalizeSymbol(symbol)
	d, ok := periodToDuration(period)
	if !ok {
		d = 31 * 24 * time.Hour
	}
	end := time.Now()
	start := end.Add(-d)
	resp, err := t.call(ctx, "daily", map[string]any{"ts_code": tsSymbol, "start_date": start.Format("20060102"), "end_date": end.Format("20060102")},
		"ts_code,trade_date,open,high,low,close,vol")
	if err != nil || resp == nil {
		return nil, err
	}
	rows := resp.rows()
	if len(rows) == 0 {
		return nil, nil
	}
	bars := make([]adapter.HistoryBar, 0, len(rows))
	for _, row := range rows {
		tradeDate := tsString(row, "trade_date")
		ts, err := time.Parse("20060102", tradeDate)
		if err != nil {
			continue
		}
		bars = append(bars, adapter.HistoryBar{
			Time: ts, Open: tsFloat(row, "open"), High: tsFloat(row, "high"),
			Low: tsFloat(row, "low"), Close: tsFloat(row, "close"), Volume: int64(tsFloat(row, "vol")),
		})
	}
	sortBarsByTime(bars)
	if len(bars) == 0 {
		return nil, nil
	}
	return &adapter.HistoryData{Symbol: symbol, Bars: bars, Source: t.Name()}, nil
}

var tushareExchangeNames = map[string]string{
	"SSE":  "Shanghai Stock Exchange",
	"SZSE": "Shenzhen Stock Exchange",
}

func (t *TushareAdapter) GetInfo(ctx context.Context, symbol string) (*adapter.CompanyInfo, error) {
	tsSymbol := normalizeSymbol(symbol)
	resp, err := t.call(ctx, "stock_basic", map[string]any{"ts_code": tsSymbol, "list_status": "L"},
		"ts_code,symbol,name,area,industry,market,list_date,exchange")
	if err != nil || resp == nil {
		return nil, err
	}
	rows := resp.rows()
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	name := tsString(row, "name")
	if name == "" {
		name = symbol
	}
	exchange := tsString(row, "exchange")
	if full, ok := tushareExchangeNames[exchange]; ok {
		exchange = full
	}
	return &adapter.CompanyInfo{
		Symbol: symbol, Name: name, Industry: tsString(row, "industry"), Country: "China",
		Currency: "CNY", Exchange: exchange, Source: t.Name(),
	}, nil
}

// GetFundamentals returns a minimal record (symbol/source only) rather than
// no data when daily_basic has no rows for the lookback window, matching
// the Python adapter's degraded-but-present behavior.
func (t *TushareAdapter) GetFundamentals(ctx context.Context, symbol string) (*adapter.Fundamentals, error) {
	tsSymbol := normalizeSymbol(symbol)
	start, end := t.dateWindow()
	resp, err := t.call(ctx, "daily_basic", map[string]any{"ts_code": tsSymbol, "start_date": start, "end_date": end},
		"ts_code,trade_date,pe,pe_ttm,pb,ps,ps_ttm,dv_ratio,dv_ttm,total_mv,circ_mv")
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	rows := resp.rows()
	if len(rows) == 0 {
		return &adapter.Fundamentals{Symbol: symbol, Source: t.Name()}, nil
	}
	latest := rows[0]

	finaResp, _ := t.call(ctx, "fina_indicator", map[string]any{"ts_code": tsSymbol},
		"ts_code,ann_date,roe,roa,netprofit_margin,grossprofit_margin")
	var roe, profitMargin float64
	if finaResp != nil {
		if finaRows := finaResp.rows(); len(finaRows) > 0 {
			roe = tsFloat(finaRows[0], "roe")
			profitMargin = tsFloat(finaRows[0], "netprofit_margin")
		}
	}

	return &adapter.Fundamentals{
		Symbol:         symbol,
		TrailingPE:     tsFloat(latest, "pe_ttm"),
		ForwardPE:      tsFloat(latest, "pe"),
		PriceToBook:    tsFloat(latest, "pb"),
		PriceToSales:   tsFloat(latest, "ps_ttm"),
		DividendYield:  tsFloat(latest, "dv_ttm"),
		MarketCap:      tsFloat(latest, "total_mv"),
		ProfitMargins:  profitMargin,
		ReturnOnEquity: roe,
		Source:         t.Name(),
	}, nil
}

// GetOptionsExpirations, GetOptionsChain, and GetEarnings are unsupported:
// Tushare doesn't provide options data for A-shares in this adapter's
// permission tier, and earnings calendar data isn't wired here.
func (t *TushareAdapter) GetOptionsExpirations(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}
func (t *TushareAdapter) GetOptionsChain(ctx context.Context, symbol, expiry string) (*adapter.OptionsChainData, error) {
	return nil, nil
}
func (t *TushareAdapter) GetEarnings(ctx context.Context, symbol string) (*adapter.EarningsData, error) {
	return nil, nil
}
