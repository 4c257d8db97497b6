package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrDedupWaitTimeout is returned when a waiter's bounded wait on another
// caller's in-flight fetch expires before the owner completes.
var ErrDedupWaitTimeout = errors.New("dedup: timed out waiting for in-flight request")

// inFlight tracks one outstanding fetch shared by any number of waiters.
type inFlight struct {
	done   chan struct{} // closed exactly once, by the owner, on completion
	result any
	err    error
}

// Deduplicator joins concurrent identical requests onto a single
// underlying fetch. Grounded on deduplicator.py's RequestDeduplicator:
// the owner releases the map lock before running fetchFn (classic
// double-check-then-wait), and the entry is removed a short grace window
// after completion so near-simultaneous late callers can still coalesce.
type Deduplicator struct {
	mu      sync.Mutex
	inflight map[string]*inFlight

	graceWindow time.Duration
	waitTimeout time.Duration
}

// NewDeduplicator creates a Deduplicator with the given grace window
// (delay before a completed entry is removed) and the wait timeout that
// every Execute waiter is bound by.
func NewDeduplicator(graceWindow, waitTimeout time.Duration) *Deduplicator {
	if graceWindow <= 0 {
		graceWindow = 500 * time.Millisecond
	}
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &Deduplicator{
		inflight:    make(map[string]*inFlight),
		graceWindow: graceWindow,
		waitTimeout: waitTimeout,
	}
}

// Execute runs fetchFn for key, or — if another caller is already fetching
// the same key — blocks until that caller's fetchFn completes and returns
// its result. Returns ErrDedupWaitTimeout if waiting exceeds the
// deduplicator's wait timeout.
func (d *Deduplicator) Execute(ctx context.Context, key string, fetchFn func(ctx context.Context) (any, error)) (any, error) {
	d.mu.Lock()
	if existing, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		return d.wait(ctx, existing)
	}

	owned := &inFlight{done: make(chan struct{})}
	d.inflight[key] = owned
	d.mu.Unlock()

	result, err := fetchFn(ctx)
	owned.result = result
	owned.err = err
	close(owned.done)

	d.scheduleCleanup(key, owned)
	return result, err
}

func (d *Deduplicator) wait(ctx context.Context, f *inFlight) (any, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.waitTimeout)
	defer cancel()

	select {
	case <-f.done:
		return f.result, f.err
	case <-waitCtx.Done():
		return nil, ErrDedupWaitTimeout
	}
}

func (d *Deduplicator) scheduleCleanup(key string, owned *inFlight) {
	time.AfterFunc(d.graceWindow, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if current, ok := d.inflight[key]; ok && current == owned {
			delete(d.inflight, key)
		}
	})
}

// MakeDedupKey builds a canonical dedup key from a data type, symbol, and
// a set of parameters: uppercase symbol, params sorted by key, joined
// deterministically so that two requests differing only in parameter
// ordering share a key.
func MakeDedupKey(dataType, symbol string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(dataType)
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(strings.TrimSpace(symbol)))

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(':')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(params[k])
		}
	}
	return b.String()
}
