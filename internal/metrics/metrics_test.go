package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

func TestRecordCallAggregatesByProviderAndDataType(t *testing.T) {
	c := newTestCollector()

	c.RecordCall(CallRecord{
		DataType:       "quote",
		Symbol:         "AAPL",
		ProvidersTried: []string{"yfinance"},
		ProviderUsed:   "yfinance",
		LatencyMS:      120,
	})
	c.RecordCall(CallRecord{
		DataType:       "quote",
		Symbol:         "MSFT",
		ProvidersTried: []string{"yfinance", "tiger"},
		ProviderUsed:   "tiger",
		LatencyMS:      80,
		FallbackUsed:   true,
	})

	dt := c.DataTypeSnapshot("quote")
	require.Equal(t, int64(2), dt.TotalCalls)
	require.Equal(t, int64(1), dt.FallbackUsed)

	health, yf := c.ProviderHealth("yfinance")
	require.Equal(t, int64(2), yf.TotalCalls)
	require.Equal(t, int64(1), yf.SuccessfulCalls)
	require.Equal(t, int64(1), yf.FailedCalls)
	require.Equal(t, HealthUnhealthy, health) // 50% success rate
}

func TestProviderHealthThresholds(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < 19; i++ {
		c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", LatencyMS: 1})
	}
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "", Result: ResultFailure})
	health, _ := c.ProviderHealth("p")
	require.Equal(t, HealthHealthy, health) // 19/20 = 95%
}

func TestUnknownProviderHealth(t *testing.T) {
	c := newTestCollector()
	health, _ := c.ProviderHealth("nope")
	require.Equal(t, HealthUnknown, health)
}

func TestRecentErrorsFiltersAndLimits(t *testing.T) {
	c := newTestCollector()
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, Result: ResultFailure})
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", LatencyMS: 1})
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"q"}, Result: ResultTimeout})

	errs := c.RecentErrors(10, "p")
	require.Len(t, errs, 1)

	allErrs := c.RecentErrors(10, "")
	require.Len(t, allErrs, 2)
}

func TestPercentileOverLatencies(t *testing.T) {
	c := newTestCollector()
	for _, ms := range []float64{10, 20, 30, 40, 100} {
		c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", LatencyMS: ms})
	}
	_, pm := c.ProviderHealth("p")
	require.InDelta(t, 30, pm.Percentile(50), 1)
	require.Equal(t, float64(100), pm.Percentile(99))
}

func TestSummarizeComputesRates(t *testing.T) {
	c := newTestCollector()
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", CacheHit: true})
	c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, Result: ResultFailure})

	s := c.Summarize()
	require.Equal(t, int64(2), s.TotalCalls)
	require.Equal(t, 50.0, s.CacheHitRate)
	require.Equal(t, 50.0, s.FailureRate)
}

func TestRecordCallIsThreadSafeSmoke(t *testing.T) {
	c := newTestCollector()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", LatencyMS: 1})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	dt := c.DataTypeSnapshot("quote")
	require.Equal(t, int64(20), dt.TotalCalls)
}

func TestRingBufferWrapsWithoutPanic(t *testing.T) {
	c := newTestCollector()
	// Exceed maxRecords to exercise wraparound.
	for i := 0; i < maxRecords+5; i++ {
		c.RecordCall(CallRecord{DataType: "quote", ProvidersTried: []string{"p"}, ProviderUsed: "p", LatencyMS: 1, Timestamp: time.Now()})
	}
	errs := c.RecentErrors(5, "")
	require.Empty(t, errs)
}
