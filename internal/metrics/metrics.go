// Package metrics implements the market-data service's call-record
// collector: a bounded ring buffer of recent calls, per-provider and
// per-data-type aggregates, latency percentiles, and provider health
// classification, plus an ambient Prometheus counter/histogram pair for
// operational scraping.
//
// Grounded on original_source's metrics.py (CallRecord, ProviderMetrics,
// DataTypeMetrics, ring buffer sizing, health thresholds, percentile
// reporting) reshaped into the teacher's infrastructure/metrics/metrics.go
// idiom (a struct of registered prometheus collectors plus a New/
// NewWithRegistry constructor pair).
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallResult classifies the outcome of a single data-fetch operation.
type CallResult string

const (
	ResultSuccess     CallResult = "success"
	ResultCacheHit    CallResult = "cache_hit"
	ResultFallback    CallResult = "fallback"
	ResultFailure     CallResult = "failure"
	ResultTimeout     CallResult = "timeout"
	ResultRateLimited CallResult = "rate_limited"
)

// CallRecord is one recorded data-fetch operation.
type CallRecord struct {
	Timestamp      time.Time
	DataType       string
	Symbol         string
	ProvidersTried []string
	ProviderUsed   string
	Result         CallResult
	CacheHit       bool
	LatencyMS      float64
	FallbackUsed   bool
	ErrorType      string
	ErrorMessage   string
}

func isErrorResult(r CallResult) bool {
	return r == ResultFailure || r == ResultTimeout
}

// ProviderStats aggregates outcomes for a single provider.
type ProviderStats struct {
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	TimeoutCalls      int64
	RateLimitedCalls  int64
	totalLatencyMS    float64
	latencies         []float64 // retained for percentile queries, bounded
	MinLatencyMS      float64
	MaxLatencyMS      float64
	LastError         string
	LastErrorTime     time.Time
	LastSuccessTime   time.Time
}

// SuccessRate returns the percentage of calls that succeeded.
func (p *ProviderStats) SuccessRate() float64 {
	if p.TotalCalls == 0 {
		return 0
	}
	return float64(p.SuccessfulCalls) / float64(p.TotalCalls) * 100
}

// AvgLatencyMS returns the mean latency of successful calls.
func (p *ProviderStats) AvgLatencyMS() float64 {
	if p.SuccessfulCalls == 0 {
		return 0
	}
	return p.totalLatencyMS / float64(p.SuccessfulCalls)
}

// Percentile returns the p-th percentile (0-100) latency among recorded
// successful calls, or 0 if none are recorded.
func (p *ProviderStats) Percentile(pct float64) float64 {
	if len(p.latencies) == 0 {
		return 0
	}
	sorted := append([]float64(nil), p.latencies...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// HealthStatus classifies a provider's recent success rate.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health classifies this provider: healthy >=95% success, degraded
// >=80%, unhealthy otherwise, unknown if no calls recorded.
func (p *ProviderStats) Health() HealthStatus {
	if p.TotalCalls == 0 {
		return HealthUnknown
	}
	rate := p.SuccessRate()
	switch {
	case rate >= 95:
		return HealthHealthy
	case rate >= 80:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// DataTypeStats aggregates outcomes for a single data type.
type DataTypeStats struct {
	TotalCalls   int64
	CacheHits    int64
	CacheMisses  int64
	FallbackUsed int64
	Failures     int64
}

// CacheHitRate returns the percentage of calls served from cache.
func (d *DataTypeStats) CacheHitRate() float64 {
	if d.TotalCalls == 0 {
		return 0
	}
	return float64(d.CacheHits) / float64(d.TotalCalls) * 100
}

const (
	maxRecords          = 10000
	maxLatenciesPerProv = 2000 // bound memory for percentile sampling
)

// Collector collects and aggregates market-data call metrics. It is
// thread-safe and intended to be constructed once and shared.
type Collector struct {
	mu sync.Mutex

	records   []CallRecord
	recHead   int
	recFilled bool

	byProvider map[string]*ProviderStats
	byDataType map[string]*DataTypeStats

	startTime time.Time

	promCallsTotal *prometheus.CounterVec
	promLatency    *prometheus.HistogramVec
}

// New creates a Collector and registers its Prometheus collectors against
// the default registerer.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Collector registered against a custom registerer
// (nil skips registration, useful in tests).
func NewWithRegistry(registerer prometheus.Registerer) *Collector {
	c := &Collector{
		records:    make([]CallRecord, maxRecords),
		byProvider: make(map[string]*ProviderStats),
		byDataType: make(map[string]*DataTypeStats),
		startTime:  time.Now(),
		promCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_data_calls_total",
				Help: "Total number of market data fetch calls by provider, data type and result.",
			},
			[]string{"provider", "data_type", "result"},
		),
		promLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "market_data_latency_seconds",
				Help:    "Market data fetch latency in seconds by provider and data type.",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "data_type"},
		),
	}
	if registerer != nil {
		registerer.MustRegister(c.promCallsTotal, c.promLatency)
	}
	return c
}

// RecordCall records one data-fetch operation's outcome.
func (c *Collector) RecordCall(rec CallRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	result := classifyResult(rec)
	rec.Result = result

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[c.recHead] = rec
	c.recHead = (c.recHead + 1) % maxRecords
	if c.recHead == 0 {
		c.recFilled = true
	}

	dt := c.byDataType[rec.DataType]
	if dt == nil {
		dt = &DataTypeStats{}
		c.byDataType[rec.DataType] = dt
	}
	dt.TotalCalls++
	if rec.CacheHit {
		dt.CacheHits++
	} else {
		dt.CacheMisses++
	}
	if rec.FallbackUsed {
		dt.FallbackUsed++
	}
	if isErrorResult(result) {
		dt.Failures++
	}

	for _, provider := range rec.ProvidersTried {
		pm := c.byProvider[provider]
		if pm == nil {
			pm = &ProviderStats{MinLatencyMS: math.Inf(1)}
			c.byProvider[provider] = pm
		}
		pm.TotalCalls++

		switch {
		case provider == rec.ProviderUsed && !isErrorResult(result):
			pm.SuccessfulCalls++
			pm.totalLatencyMS += rec.LatencyMS
			if rec.LatencyMS < pm.MinLatencyMS {
				pm.MinLatencyMS = rec.LatencyMS
			}
			if rec.LatencyMS > pm.MaxLatencyMS {
				pm.MaxLatencyMS = rec.LatencyMS
			}
			pm.LastSuccessTime = rec.Timestamp
			pm.latencies = append(pm.latencies, rec.LatencyMS)
			if len(pm.latencies) > maxLatenciesPerProv {
				pm.latencies = pm.latencies[len(pm.latencies)-maxLatenciesPerProv:]
			}
		case provider != rec.ProviderUsed:
			pm.FailedCalls++
			if result == ResultTimeout {
				pm.TimeoutCalls++
			}
			if result == ResultRateLimited {
				pm.RateLimitedCalls++
			}
			pm.LastError = rec.ErrorType
			pm.LastErrorTime = rec.Timestamp
		}
	}

	c.promCallsTotal.WithLabelValues(valueOrUnknown(rec.ProviderUsed), rec.DataType, string(result)).Inc()
	if rec.ProviderUsed != "" {
		c.promLatency.WithLabelValues(rec.ProviderUsed, rec.DataType).Observe(rec.LatencyMS / 1000.0)
	}
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func classifyResult(rec CallRecord) CallResult {
	switch {
	case rec.CacheHit:
		return ResultCacheHit
	case rec.Result == ResultTimeout:
		return ResultTimeout
	case rec.Result == ResultRateLimited:
		return ResultRateLimited
	case rec.Result == ResultFailure:
		return ResultFailure
	case rec.FallbackUsed:
		return ResultFallback
	default:
		return ResultSuccess
	}
}

// ProviderHealth returns the health classification and stats snapshot for
// a named provider.
func (c *Collector) ProviderHealth(provider string) (HealthStatus, ProviderStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pm, ok := c.byProvider[provider]
	if !ok {
		return HealthUnknown, ProviderStats{}
	}
	return pm.Health(), *pm
}

// DataTypeSnapshot returns a copy of the aggregated stats for a data type.
func (c *Collector) DataTypeSnapshot(dataType string) DataTypeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dt, ok := c.byDataType[dataType]; ok {
		return *dt
	}
	return DataTypeStats{}
}

// RecentErrors returns up to limit most-recent error (failure/timeout)
// records, optionally filtered by provider.
func (c *Collector) RecentErrors(limit int, provider string) []CallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var all []CallRecord
	n := maxRecords
	if !c.recFilled {
		n = c.recHead
	}
	for i := 0; i < n; i++ {
		idx := i
		if c.recFilled {
			idx = (c.recHead + i) % maxRecords
		}
		r := c.records[idx]
		if !isErrorResult(r.Result) {
			continue
		}
		if provider != "" && !containsStr(r.ProvidersTried, provider) {
			continue
		}
		all = append(all, r)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Summary is a point-in-time snapshot suitable for periodic logging.
type Summary struct {
	UptimeSeconds  float64
	TotalCalls     int64
	CacheHitRate   float64
	FailureRate    float64
	ProviderHealth map[string]HealthStatus
}

// Summarize computes a Summary across all tracked data types and providers.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalCalls, totalHits, totalFailures int64
	for _, dt := range c.byDataType {
		totalCalls += dt.TotalCalls
		totalHits += dt.CacheHits
		totalFailures += dt.Failures
	}

	health := make(map[string]HealthStatus, len(c.byProvider))
	for name, pm := range c.byProvider {
		health[name] = pm.Health()
	}

	s := Summary{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		TotalCalls:     totalCalls,
		ProviderHealth: health,
	}
	if totalCalls > 0 {
		s.CacheHitRate = float64(totalHits) / float64(totalCalls) * 100
		s.FailureRate = float64(totalFailures) / float64(totalCalls) * 100
	}
	return s
}
