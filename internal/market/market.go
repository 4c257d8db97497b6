// Package market centralizes market detection and symbol normalization.
// This is the single source of truth used by provider adapters (to check
// supported_markets) and the market-data router (to pick candidate
// adapters by market).
package market

import "strings"

// Market identifies which exchange/market family a symbol belongs to.
type Market string

const (
	US        Market = "US"
	HK        Market = "HK"
	CN        Market = "CN"
	Commodity Market = "COMMODITY"
)

// cnPrefixRules maps a 6-digit A-share code's first two digits to its exchange suffix.
var cnPrefixRules = map[string]string{
	"60": "SS", // Shanghai Main Board
	"68": "SS", // Shanghai STAR Market
	"00": "SZ", // Shenzhen Main Board
	"30": "SZ", // Shenzhen ChiNext
}

// suffixToMarket maps an explicit ticker suffix to its market.
var suffixToMarket = []struct {
	suffix string
	market Market
}{
	{".SS", CN},
	{".SZ", CN},
	{".SH", CN},
	{".HK", HK},
}

// commodityProductCodes is the futures-options product whitelist.
var commodityProductCodes = map[string]bool{
	"au": true, "ag": true, "cu": true, "al": true, "m": true,
}

// futuresExchangePrefixes are recognized exchange prefixes for "EXCH.code" symbols.
var futuresExchangePrefixes = map[string]bool{
	"shfe": true, "dce": true, "czce": true, "ine": true,
}

// macroTickers and indexETFs get the quote TTL regardless of their usual data type.
var macroTickers = map[string]bool{
	"^GSPC": true, "^IXIC": true, "^DJI": true, "^VIX": true,
}

var indexETFs = map[string]bool{
	"SPY": true, "QQQ": true, "DIA": true,
}

// IsCommoditySymbol reports whether symbol names a commodity futures-option
// product, recognizing formats like "au", "au2604", "SHFE.au2604".
func IsCommoditySymbol(symbol string) bool {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if idx := strings.Index(s, "."); idx >= 0 {
		prefix, rest := s[:idx], s[idx+1:]
		if !futuresExchangePrefixes[prefix] {
			return false
		}
		s = rest
	}
	var product strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			product.WriteRune(r)
		}
	}
	return commodityProductCodes[product.String()]
}

// Detect determines which Market a symbol belongs to.
//
// Priority: suffix (.HK, .SS/.SZ/.SH) > 6-digit CN prefix > bare 1-to-5-digit
// numeric (HK) > commodity whitelist > US default. The bare-numeric rule
// mirrors Normalize's own fallback so Detect(Normalize(x)) == Detect(x).
func Detect(symbol string) Market {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	for _, rule := range suffixToMarket {
		if strings.HasSuffix(upper, rule.suffix) {
			return rule.market
		}
	}

	base := baseTicker(upper)
	if isSixDigitCode(base) {
		if _, ok := cnPrefixRules[base[:2]]; ok {
			return CN
		}
	}

	if isBareHKNumeric(base) {
		return HK
	}

	if IsCommoditySymbol(symbol) {
		return Commodity
	}

	return US
}

// DetectWithExchange is Detect plus the specific exchange code, where
// applicable ("SS", "SZ", "HK", or "" for US/commodity symbols).
func DetectWithExchange(symbol string) (Market, string) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	switch {
	case strings.HasSuffix(upper, ".HK"):
		return HK, "HK"
	case strings.HasSuffix(upper, ".SS"), strings.HasSuffix(upper, ".SH"):
		return CN, "SS"
	case strings.HasSuffix(upper, ".SZ"):
		return CN, "SZ"
	}

	base := baseTicker(upper)
	if isSixDigitCode(base) {
		if exch, ok := cnPrefixRules[base[:2]]; ok {
			return CN, exch
		}
	}

	if isBareHKNumeric(base) {
		return HK, "HK"
	}

	return US, ""
}

// Normalize returns the canonical form of symbol: bare 6-digit CN codes get
// their exchange suffix appended; bare HK numeric codes are left-padded to
// 4 digits and suffixed .HK; everything else is returned upper-cased.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	if strings.Contains(upper, ".HK") {
		base := strings.Replace(upper, ".HK", "", 1)
		if isAllDigits(base) {
			return padHK(base) + ".HK"
		}
		return upper
	}

	for _, rule := range suffixToMarket {
		if strings.HasSuffix(upper, rule.suffix) {
			return upper
		}
	}

	base := baseTicker(upper)
	if isSixDigitCode(base) {
		if exch, ok := cnPrefixRules[base[:2]]; ok {
			return base + "." + exch
		}
	}

	if isBareHKNumeric(base) {
		return padHK(base) + ".HK"
	}

	return upper
}

// isBareHKNumeric reports whether base is a plain numeric ticker (no
// suffix, not a 6-digit CN code) short enough to be an unpadded HK code
// (up to 5 significant digits once leading zeros are stripped).
func isBareHKNumeric(base string) bool {
	if !isAllDigits(base) {
		return false
	}
	stripped := strings.TrimLeft(base, "0")
	return len(stripped) <= 5
}

func padHK(digits string) string {
	stripped := strings.TrimLeft(digits, "0")
	if stripped == "" {
		stripped = "0"
	}
	for len(stripped) < 4 {
		stripped = "0" + stripped
	}
	return stripped
}

func baseTicker(upper string) string {
	if idx := strings.Index(upper, "."); idx >= 0 {
		return upper[:idx]
	}
	return upper
}

func isSixDigitCode(s string) bool {
	return len(s) == 6 && isAllDigits(s)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Name returns a human-readable name for market in the requested language
// ("en" or "zh"); defaults to English for unknown languages.
func Name(m Market, language string) string {
	names := map[Market]map[string]string{
		US:        {"en": "US Market", "zh": "美股"},
		CN:        {"en": "China A-Share", "zh": "A股"},
		HK:        {"en": "Hong Kong", "zh": "港股"},
		Commodity: {"en": "Commodity Futures", "zh": "商品期货"},
	}
	if byLang, ok := names[m]; ok {
		if name, ok := byLang[language]; ok {
			return name
		}
		return byLang["en"]
	}
	return string(m)
}

func IsAShare(symbol string) bool   { return Detect(symbol) == CN }
func IsHKStock(symbol string) bool  { return Detect(symbol) == HK }
func IsUSStock(symbol string) bool  { return Detect(symbol) == US }
func IsCommodity(symbol string) bool { return Detect(symbol) == Commodity }

// IsMacroTicker reports whether symbol is one of the fixed macro-index tickers.
func IsMacroTicker(symbol string) bool {
	return macroTickers[strings.ToUpper(strings.TrimSpace(symbol))]
}

// IsIndexETF reports whether symbol is one of the fixed index-tracking ETFs.
func IsIndexETF(symbol string) bool {
	return indexETFs[strings.ToUpper(strings.TrimSpace(symbol))]
}
