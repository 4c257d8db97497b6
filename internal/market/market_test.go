package market

import "testing"

func TestDetect(t *testing.T) {
	cases := map[string]Market{
		"AAPL":        US,
		"0700.HK":     HK,
		"600519":      CN,
		"000001":      CN,
		"au":          Commodity,
		"au2604":      Commodity,
		"m2605":       Commodity,
		"SHFE.au2506": Commodity,
		"300059":      CN,
		"680001":      CN,
	}
	for symbol, want := range cases {
		if got := Detect(symbol); got != want {
			t.Errorf("Detect(%q) = %v, want %v", symbol, got, want)
		}
	}
}

func TestDetectWithExchange(t *testing.T) {
	m, exch := DetectWithExchange("600519")
	if m != CN || exch != "SS" {
		t.Fatalf("got (%v, %q)", m, exch)
	}
	m, exch = DetectWithExchange("000001")
	if m != CN || exch != "SZ" {
		t.Fatalf("got (%v, %q)", m, exch)
	}
	m, exch = DetectWithExchange("0700.HK")
	if m != HK || exch != "HK" {
		t.Fatalf("got (%v, %q)", m, exch)
	}
	m, exch = DetectWithExchange("AAPL")
	if m != US || exch != "" {
		t.Fatalf("got (%v, %q)", m, exch)
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"600519":  "600519.SS",
		"000001":  "000001.SZ",
		"AAPL":    "AAPL",
		"0700.HK": "0700.HK",
		"700":     "0700.HK",
		"179.HK":  "0179.HK",
	}
	for symbol, want := range cases {
		if got := Normalize(symbol); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", symbol, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"600519", "000001", "AAPL", "0700.HK", "700", "179.HK", "au2604"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestDetectMarketAfterNormalizeMatchesBefore(t *testing.T) {
	inputs := []string{"600519", "000001", "AAPL", "0700.HK", "700", "179.HK", "au2604", "SHFE.au2506"}
	for _, in := range inputs {
		before := Detect(in)
		after := Detect(Normalize(in))
		if before != after {
			t.Errorf("detect(normalize(%q)) = %v, want %v (detect before normalize)", in, after, before)
		}
	}
}

func TestIsCommoditySymbol(t *testing.T) {
	cases := map[string]bool{
		"au":           true,
		"au2604":       true,
		"SHFE.au2604":  true,
		"m2605":        true,
		"AAPL":         false,
		"unknown.xyz2": false,
	}
	for symbol, want := range cases {
		if got := IsCommoditySymbol(symbol); got != want {
			t.Errorf("IsCommoditySymbol(%q) = %v, want %v", symbol, got, want)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsAShare("600519") || IsAShare("AAPL") {
		t.Fatal("IsAShare wrong")
	}
	if !IsHKStock("0700.HK") || IsHKStock("AAPL") {
		t.Fatal("IsHKStock wrong")
	}
	if !IsUSStock("AAPL") || IsUSStock("600519") {
		t.Fatal("IsUSStock wrong")
	}
	if !IsCommodity("au2604") || IsCommodity("AAPL") {
		t.Fatal("IsCommodity wrong")
	}
}

func TestMacroAndIndexTickers(t *testing.T) {
	if !IsMacroTicker("^gspc") {
		t.Fatal("expected ^GSPC to be a macro ticker (case-insensitive)")
	}
	if !IsIndexETF("spy") {
		t.Fatal("expected SPY to be an index ETF (case-insensitive)")
	}
	if IsMacroTicker("AAPL") || IsIndexETF("AAPL") {
		t.Fatal("AAPL should not be macro or index ETF")
	}
}
