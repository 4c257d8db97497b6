// Package marketdata implements the central market-data router: a single
// entry point that resolves a symbol's market, checks the cache,
// deduplicates concurrent identical requests, and fails over across
// registered provider adapters in priority order.
//
// Grounded on original_source's service.py (MarketDataService): cache-
// check-then-deduplicate-then-failover-loop shape, per-call metrics
// recording, provider candidate filtering/sorting. The teacher has no
// direct analog for a multi-provider data router, so the composition
// style (constructor injecting cache/dedup/metrics/logger, one method per
// operation) follows the teacher's general service-struct idiom seen in
// its price-feed and oracle services.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alphagbm/analysiscore/internal/adapter"
	"github.com/alphagbm/analysiscore/internal/cache"
	"github.com/alphagbm/analysiscore/internal/logging"
	"github.com/alphagbm/analysiscore/internal/market"
	"github.com/alphagbm/analysiscore/internal/metrics"
	"github.com/alphagbm/analysiscore/internal/protection"
)

// ProviderConfig is the per-adapter registration configuration.
type ProviderConfig struct {
	Enabled  bool
	Priority int // lower runs first
}

type registration struct {
	adapter adapter.Adapter
	guard   *protection.Guard
	config  ProviderConfig
}

// Service is the central market-data router.
type Service struct {
	mu            sync.RWMutex
	registrations map[string]*registration

	cache   *cache.Cache
	dedup   *cache.Deduplicator
	metrics *metrics.Collector
	logger  *logging.Logger
}

// New creates a Service. cache/dedup/collector/logger are required
// collaborators; Service performs no I/O of its own without registered
// adapters.
func New(c *cache.Cache, d *cache.Deduplicator, m *metrics.Collector, l *logging.Logger) *Service {
	return &Service{
		registrations: make(map[string]*registration),
		cache:         c,
		dedup:         d,
		metrics:       m,
		logger:        l,
	}
}

// RegisterAdapter adds a provider adapter under its own protection guard.
func (s *Service) RegisterAdapter(a adapter.Adapter, guard *protection.Guard, cfg ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[a.Name()] = &registration{adapter: a, guard: guard, config: cfg}
	s.logger.WithFields(map[string]interface{}{"provider": a.Name()}).Info("registered market data provider")
}

// candidates returns enabled adapters supporting dt/m/symbol, sorted by
// effective priority (circuit-open adapters excluded entirely per the
// router's step 3; rate-limited-but-closed adapters deprioritized by
// +1000 rather than excluded, matching service.py's "deprioritize, don't
// exclude" comment).
func (s *Service) candidates(dt adapter.DataType, m market.Market, symbol string) []*registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		reg      *registration
		priority int
	}
	var out []scored
	for _, reg := range s.registrations {
		if !reg.config.Enabled {
			continue
		}
		caps := reg.adapter.Capabilities()
		if !caps.Has(dt) || !caps.Covers(m) {
			continue
		}
		if symbol != "" && !reg.adapter.SupportsSymbol(symbol) {
			continue
		}
		if reg.guard != nil && reg.guard.CircuitOpen() {
			continue
		}
		priority := reg.config.Priority
		if reg.guard != nil && reg.guard.RateLimited() {
			priority += 1000
		}
		out = append(out, scored{reg: reg, priority: priority})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })

	regs := make([]*registration, len(out))
	for i, sc := range out {
		regs[i] = sc.reg
	}
	return regs
}

func cacheKey(dt adapter.DataType, symbol string, suffix string) string {
	key := fmt.Sprintf("%s:%s", dt, strings.ToUpper(symbol))
	if suffix != "" {
		key += ":" + suffix
	}
	return key
}

// fetchResult bundles a fetched value with the provider that produced it,
// so the generic failover loop can cache and record metrics uniformly.
type fetchResult struct {
	value  any
	source string
}

// runFailover executes the cache -> dedup -> candidate-loop contract for
// one operation and returns the fetched value (already cached on success).
// call must return a (value, error) where value is a pointer or slice;
// a nil value with nil error means "provider has no data for this
// symbol" and is not a failure.
func runFailover(
	ctx context.Context,
	s *Service,
	dt adapter.DataType,
	symbol string,
	cacheSuffix string,
	ttl func(a adapter.Adapter) time.Duration,
	call func(ctx context.Context, a adapter.Adapter) (any, error),
) (any, string, error) {
	key := cacheKey(dt, symbol, cacheSuffix)
	start := time.Now()

	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCall(metrics.CallRecord{
			DataType:  string(dt),
			Symbol:    symbol,
			CacheHit:  true,
			LatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
		})
		return v, "cache", nil
	}

	raw, err := s.dedup.Execute(ctx, key, func(ctx context.Context) (any, error) {
		m := market.Detect(symbol)
		regs := s.candidates(dt, m, symbol)

		var providersTried []string
		fallbackUsed := false
		var lastErr error

		for _, reg := range regs {
			providersTried = append(providersTried, reg.adapter.Name())
			fetchStart := time.Now()

			var value any
			var callErr error
			if reg.guard != nil {
				callErr = reg.guard.Execute(ctx, func(ctx context.Context) error {
					v, e := call(ctx, reg.adapter)
					value = v
					return e
				})
			} else {
				value, callErr = call(ctx, reg.adapter)
			}
			elapsed := float64(time.Since(fetchStart).Microseconds()) / 1000.0

			if callErr != nil {
				lastErr = callErr
				fallbackUsed = true
				s.metrics.RecordCall(metrics.CallRecord{
					DataType:       string(dt),
					Symbol:         symbol,
					ProvidersTried: providersTried,
					LatencyMS:      elapsed,
					Result:         resultForErr(callErr),
					ErrorType:      classifyErrName(callErr),
					ErrorMessage:   callErr.Error(),
				})
				continue
			}
			if value == nil {
				// Provider ran cleanly but has no data for this symbol.
				continue
			}

			if ttl != nil {
				s.cache.Set(key, value, ttl(reg.adapter), reg.adapter.Name())
			}
			s.metrics.RecordCall(metrics.CallRecord{
				DataType:       string(dt),
				Symbol:         symbol,
				ProvidersTried: providersTried,
				ProviderUsed:   reg.adapter.Name(),
				LatencyMS:      float64(time.Since(start).Microseconds()) / 1000.0,
				FallbackUsed:   fallbackUsed,
			})
			return &fetchResult{value: value, source: reg.adapter.Name()}, nil
		}

		errMsg := "no provider returned data"
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
		s.metrics.RecordCall(metrics.CallRecord{
			DataType:       string(dt),
			Symbol:         symbol,
			ProvidersTried: providersTried,
			LatencyMS:      float64(time.Since(start).Microseconds()) / 1000.0,
			Result:         metrics.ResultFailure,
			ErrorType:      "all_providers_failed",
			ErrorMessage:   errMsg,
		})
		// All candidates exhausted without error or data: the caller's
		// contract treats this as "not available right now", not a failure
		// (spec.md's router-translates-exhaustion-to-null rule).
		return nil, nil
	})
	if err != nil {
		return nil, "", err
	}
	if raw == nil {
		return nil, "", nil
	}
	fr := raw.(*fetchResult)
	return fr.value, fr.source, nil
}

func resultForErr(err error) metrics.CallResult {
	switch protection.Classify(err) {
	case protection.ClassRateLimit:
		return metrics.ResultRateLimited
	default:
		return metrics.ResultFailure
	}
}

func classifyErrName(err error) string {
	switch protection.Classify(err) {
	case protection.ClassRateLimit:
		return "rate_limited"
	case protection.ClassNetwork:
		return "network"
	case protection.ClassInvalidSymbol:
		return "invalid_symbol"
	default:
		return "unclassified"
	}
}
