package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissOnEmpty(t *testing.T) {
	c := New(10, true)
	v, ok := c.Get("missing")
	require.False(t, ok)
	require.Nil(t, v)
	require.Equal(t, int64(1), c.Stats().Misses)
}

func TestSetThenGetHits(t *testing.T) {
	c := New(10, true)
	c.Set("AAPL:quote", 123.45, time.Minute, "yfinance")
	v, ok := c.Get("AAPL:quote")
	require.True(t, ok)
	require.Equal(t, 123.45, v)
	require.Equal(t, int64(1), c.Stats().Hits)
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c := New(10, false)
	c.Set("k", "v", time.Minute, "src")
	v, ok := c.Get("k")
	require.False(t, ok)
	require.Nil(t, v)
}

func TestExpiredEntryCountsAsMiss(t *testing.T) {
	c := New(10, true)
	c.Set("k", "v", time.Millisecond, "src")
	time.Sleep(5 * time.Millisecond)
	v, ok := c.Get("k")
	require.False(t, ok)
	require.Nil(t, v)
	require.Equal(t, int64(1), c.Stats().Misses)
}

func TestCapacityOneEvictsFirst(t *testing.T) {
	c := New(1, true)
	c.Set("first", "a", time.Minute, "src")
	c.Set("second", "b", time.Minute, "src")

	_, ok := c.Get("first")
	require.False(t, ok, "first key should have been evicted")

	v, ok := c.Get("second")
	require.True(t, ok)
	require.Equal(t, "b", v)

	require.Equal(t, int64(1), c.Stats().Evictions)
}

func TestDeleteDoesNotCountAsEviction(t *testing.T) {
	c := New(10, true)
	c.Set("k", "v", time.Minute, "src")
	require.True(t, c.Delete("k"))
	require.Equal(t, int64(0), c.Stats().Evictions)
}

func TestCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	c := New(10, true)
	c.Set("stale", "v", time.Millisecond, "src")
	c.Set("fresh", "v", time.Hour, "src")
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	require.Equal(t, 1, removed)
	require.Equal(t, int64(0), c.Stats().Evictions, "TTL expiry is not an LRU eviction")

	_, ok := c.Get("fresh")
	require.True(t, ok)
}

func TestStatsSize(t *testing.T) {
	c := New(5, true)
	c.Set("a", 1, time.Minute, "src")
	c.Set("b", 2, time.Minute, "src")
	stats := c.Stats()
	require.Equal(t, 2, stats.Size)
	require.Equal(t, 5, stats.MaxSize)
}

func TestDeduplicatorSingleFetchForConcurrentCallers(t *testing.T) {
	d := NewDeduplicator(50*time.Millisecond, time.Second)

	var calls atomic.Int64
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "result", nil
	}

	const n = 100
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = d.Execute(context.Background(), "AAPL:quote", fetch)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "exactly one underlying fetch for 100 concurrent callers")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "result", results[i])
	}
}

func TestDeduplicatorPropagatesFetchError(t *testing.T) {
	d := NewDeduplicator(50*time.Millisecond, time.Second)
	wantErr := fmt.Errorf("boom")
	_, err := d.Execute(context.Background(), "k", func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestDeduplicatorWaitTimeout(t *testing.T) {
	d := NewDeduplicator(50*time.Millisecond, 10*time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go d.Execute(context.Background(), "slow", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "done", nil
	})
	<-started

	_, err := d.Execute(context.Background(), "slow", func(ctx context.Context) (any, error) {
		t.Fatal("second caller should have waited, not fetched")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrDedupWaitTimeout)
	close(release)
}

func TestDeduplicatorRunsAgainAfterGraceWindow(t *testing.T) {
	d := NewDeduplicator(10*time.Millisecond, time.Second)
	var calls atomic.Int64
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := d.Execute(context.Background(), "k", fetch)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = d.Execute(context.Background(), "k", fetch)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestMakeDedupKeyOrderIndependent(t *testing.T) {
	k1 := MakeDedupKey("history", "aapl", map[string]string{"period": "1y", "interval": "1d"})
	k2 := MakeDedupKey("history", "AAPL", map[string]string{"interval": "1d", "period": "1y"})
	require.Equal(t, k1, k2)
}
