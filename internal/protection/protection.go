// Package protection implements the per-adapter protection layer: a
// concurrency semaphore, a rate-limit cooldown tracker, and a
// CLOSED/OPEN/HALF_OPEN circuit breaker, composed into a single Guard.
//
// Grounded on the Python adapters/base.py (ConcurrencyLimiter,
// CircuitBreaker, RateLimitTracker, error classifiers) and shaped in the
// teacher's idiom (infrastructure/resilience/circuit_breaker.go's
// Config/State/Execute shape, infrastructure/ratelimit's use of
// golang.org/x/time/rate).
package protection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Classified sentinel errors surfaced to callers. Callers should use
// errors.Is against these rather than string-matching.
var (
	ErrRateLimited   = errors.New("protection: rate limited")
	ErrNetwork       = errors.New("protection: network error")
	ErrInvalidSymbol = errors.New("protection: invalid symbol")
	ErrUnclassified  = errors.New("protection: unclassified error")

	ErrCircuitOpen      = errors.New("protection: circuit open")
	ErrConcurrencyLimit = errors.New("protection: concurrency limit exceeded")
)

// Classification is the taxonomy of an adapter call outcome.
type Classification int

const (
	ClassRateLimit Classification = iota
	ClassNetwork
	ClassInvalidSymbol
	ClassUnclassified
)

var rateLimitMarkers = []string{
	"429", "too many requests", "rate limit", "rate_limit", "throttle",
}

var networkMarkers = []string{
	"timeout", "connection refused", "connection reset", "no such host",
	"eof", "dial tcp", "i/o timeout", "network is unreachable",
}

var invalidSymbolMarkers = []string{
	"symbol not found", "invalid symbol", "no data found", "404",
	"delisted", "unknown ticker",
}

// Classify inspects err's message for known substrings and returns its
// classification. Only ClassRateLimit, ClassNetwork, and ClassUnclassified
// count as protection-layer failures; ClassInvalidSymbol does not.
func Classify(err error) Classification {
	if err == nil {
		return ClassUnclassified
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return ClassRateLimit
		}
	}
	for _, m := range invalidSymbolMarkers {
		if strings.Contains(msg, m) {
			return ClassInvalidSymbol
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return ClassNetwork
		}
	}
	return ClassUnclassified
}

// CircuitState is one of CLOSED / OPEN / HALF_OPEN.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config configures a Guard. Zero values are replaced by spec defaults.
type Config struct {
	MaxConcurrent            int
	AcquireTimeout           time.Duration
	CooldownSeconds          int
	MaxConsecutiveFailures   int
	CircuitFailureThreshold  int
	CircuitSuccessThreshold  int
	CircuitTimeout           time.Duration
	RequestsPerMinute        float64 // 0 means unlimited
	OnStateChange            func(from, to CircuitState)
}

// DefaultConfig returns the spec's defaults (§4.B, §6.3).
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:           10,
		AcquireTimeout:          30 * time.Second,
		CooldownSeconds:         60,
		MaxConsecutiveFailures:  3,
		CircuitFailureThreshold: 5,
		CircuitSuccessThreshold: 3,
		CircuitTimeout:          30 * time.Second,
	}
}

// Guard composes the three protection mechanisms for a single adapter.
type Guard struct {
	cfg Config

	sem chan struct{}
	rpm *rate.Limiter

	mu                  sync.Mutex
	consecutiveFailures int
	lastFailureAt       time.Time
	lastSuccessAt       time.Time
	rateLimited         bool
	cooldownUntil       time.Time

	state             CircuitState
	circuitFailures   int
	halfOpenSuccesses int
	openedAt          time.Time
}

// New creates a Guard from cfg, filling zero fields with DefaultConfig.
func New(cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = def.CooldownSeconds
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if cfg.CircuitSuccessThreshold <= 0 {
		cfg.CircuitSuccessThreshold = def.CircuitSuccessThreshold
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = def.CircuitTimeout
	}

	g := &Guard{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
	if cfg.RequestsPerMinute > 0 {
		g.rpm = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), int(cfg.RequestsPerMinute))
	}
	return g
}

// CircuitOpen reports whether the circuit is currently OPEN, lazily
// transitioning OPEN to HALF_OPEN if the timeout has elapsed. The router
// must call this (read-only) to decide candidate eligibility; it never
// mutates a Guard's state directly.
func (g *Guard) CircuitOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeHalfOpenLocked()
	return g.state == StateOpen
}

// RateLimited reports whether the adapter is currently in a rate-limit
// cooldown, clearing the flag once the cooldown has elapsed.
func (g *Guard) RateLimited() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rateLimited && time.Now().After(g.cooldownUntil) {
		g.rateLimited = false
	}
	return g.rateLimited
}

// ActiveRequests returns the number of calls currently holding the
// concurrency semaphore.
func (g *Guard) ActiveRequests() int {
	return len(g.sem)
}

func (g *Guard) maybeHalfOpenLocked() {
	if g.state == StateOpen && time.Since(g.openedAt) >= g.cfg.CircuitTimeout {
		g.transitionLocked(StateHalfOpen)
		g.halfOpenSuccesses = 0
	}
}

func (g *Guard) transitionLocked(to CircuitState) {
	if g.state == to {
		return
	}
	from := g.state
	g.state = to
	if to == StateOpen {
		g.openedAt = time.Now()
	}
	if g.cfg.OnStateChange != nil {
		cb := g.cfg.OnStateChange
		go cb(from, to)
	}
}

// Execute runs fn under the full protection stack: acquires a concurrency
// slot (bounded by AcquireTimeout), refuses immediately if the circuit is
// OPEN, runs fn, classifies any error, and updates cooldown/circuit state.
func (g *Guard) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.CircuitOpen() {
		return ErrCircuitOpen
	}

	if g.rpm != nil {
		if err := g.rpm.Wait(ctx); err != nil {
			return err
		}
	}

	acquireCtx, cancel := context.WithTimeout(ctx, g.cfg.AcquireTimeout)
	defer cancel()
	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-acquireCtx.Done():
		return ErrConcurrencyLimit
	}

	err := fn(ctx)
	g.afterCall(err)
	if err == nil {
		return nil
	}
	sentinel := ErrUnclassified
	switch Classify(err) {
	case ClassRateLimit:
		sentinel = ErrRateLimited
	case ClassNetwork:
		sentinel = ErrNetwork
	case ClassInvalidSymbol:
		sentinel = ErrInvalidSymbol
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func (g *Guard) afterCall(err error) {
	if err == nil {
		g.onSuccess()
		return
	}
	class := Classify(err)
	if class == ClassInvalidSymbol {
		// Not counted as a failure: symbol genuinely has no data.
		return
	}
	g.onFailure(class)
}

func (g *Guard) onSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFailures = 0
	g.lastSuccessAt = time.Now()

	switch g.state {
	case StateHalfOpen:
		g.halfOpenSuccesses++
		if g.halfOpenSuccesses >= g.cfg.CircuitSuccessThreshold {
			g.transitionLocked(StateClosed)
			g.circuitFailures = 0
		}
	case StateClosed:
		g.circuitFailures = 0
	}
}

func (g *Guard) onFailure(class Classification) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFailures++
	g.lastFailureAt = time.Now()

	if class == ClassRateLimit || g.consecutiveFailures >= g.cfg.MaxConsecutiveFailures {
		g.rateLimited = true
		g.cooldownUntil = time.Now().Add(time.Duration(g.cfg.CooldownSeconds) * time.Second)
	}

	switch g.state {
	case StateHalfOpen:
		g.transitionLocked(StateOpen)
		g.halfOpenSuccesses = 0
	case StateClosed:
		g.circuitFailures++
		if g.circuitFailures >= g.cfg.CircuitFailureThreshold {
			g.transitionLocked(StateOpen)
		}
	}
}

// State returns the current circuit state without triggering the lazy
// OPEN->HALF_OPEN transition (for inspection/testing).
func (g *Guard) State() CircuitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
