package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/memocache/pkg/cache"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	store := cache.New(cache.Config{CleanupInterval: time.Hour})
	t.Cleanup(store.Destroy)
	return New(store, cfg)
}

func TestKey(t *testing.T) {
	l := newTestLimiter(t, Config{})
	assert.Equal(t, "rate-limit:10.0.0.1", l.Key("10.0.0.1"))
}

func TestConfigDefaults(t *testing.T) {
	l := newTestLimiter(t, Config{Backoff: BackoffConfig{Enabled: true}})

	cfg := l.Config()
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 100, cfg.MaxRequests)
	assert.Equal(t, time.Second, cfg.Backoff.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Backoff.MaxDelay)
	assert.Equal(t, float64(2), cfg.Backoff.Factor)
}

func TestFreshKeyIsUnlimited(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 5})

	d := l.Check(l.Key("new"))
	assert.False(t, d.Limited)
	assert.Equal(t, 5, d.Remaining)
	assert.True(t, d.ResetAt.After(time.Now()))
	assert.Zero(t, d.RetryAfter)
	assert.Nil(t, d.BlockedUntil)
}

func TestWindowLimit(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 5})
	k := l.Key("client-a")

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(k, false))
	}

	d := l.Check(k)
	assert.True(t, d.Limited)
	assert.Equal(t, 0, d.Remaining)

	// A distinct key is completely unaffected.
	d2 := l.Check(l.Key("client-b"))
	assert.False(t, d2.Limited)
	assert.Equal(t, 5, d2.Remaining)
}

func TestRemainingDecrements(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 3})
	k := l.Key("c")

	require.NoError(t, l.Record(k, true))
	assert.Equal(t, 2, l.Check(k).Remaining)

	require.NoError(t, l.Record(k, false))
	assert.Equal(t, 1, l.Check(k).Remaining)
}

func TestSkipSuccessful(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 3, SkipSuccessful: true})
	k := l.Key("c")

	require.NoError(t, l.Record(k, true))
	require.NoError(t, l.Record(k, true))
	assert.Equal(t, 3, l.Check(k).Remaining, "successes do not consume budget")

	require.NoError(t, l.Record(k, false))
	assert.Equal(t, 2, l.Check(k).Remaining)
}

func TestWindowReset(t *testing.T) {
	l := newTestLimiter(t, Config{Window: 50 * time.Millisecond, MaxRequests: 2})
	k := l.Key("c")

	require.NoError(t, l.Record(k, false))
	require.NoError(t, l.Record(k, false))
	require.True(t, l.Check(k).Limited)

	time.Sleep(80 * time.Millisecond)

	d := l.Check(k)
	assert.False(t, d.Limited, "an expired window reads as reset")
	assert.Equal(t, 2, d.Remaining)
}

func TestBackoffBlocking(t *testing.T) {
	l := newTestLimiter(t, Config{
		Window:      time.Minute,
		MaxRequests: 100,
		Backoff:     BackoffConfig{Enabled: true, BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Factor: 2},
	})
	k := l.Key("flaky")

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(k, false))
	}

	d := l.Check(k)
	assert.True(t, d.Limited, "block takes priority over the window count")
	assert.Equal(t, 0, d.Remaining)
	require.NotNil(t, d.BlockedUntil)
	assert.Positive(t, d.RetryAfter)

	// One success clears the block and the failure streak.
	require.NoError(t, l.Record(k, true))
	d = l.Check(k)
	assert.False(t, d.Limited)
	assert.Nil(t, d.BlockedUntil)
}

func TestFirstFailureDoesNotBlock(t *testing.T) {
	l := newTestLimiter(t, Config{
		Window:  time.Minute,
		Backoff: BackoffConfig{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2},
	})
	k := l.Key("c")

	require.NoError(t, l.Record(k, false))
	assert.Nil(t, l.Check(k).BlockedUntil, "backoff starts at the second consecutive failure")
}

func TestBackoffDelayMonotonicAndClamped(t *testing.T) {
	l := newTestLimiter(t, Config{
		Backoff: BackoffConfig{Enabled: true, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Factor: 2},
	})

	prev := time.Duration(0)
	for failures := 2; failures <= 64; failures++ {
		d := l.backoffDelay(failures)
		assert.GreaterOrEqual(t, d, prev, "delay never decreases with the streak")
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	assert.Equal(t, 30*time.Second, l.backoffDelay(64), "large streaks clamp at MaxDelay")
}

func TestBackoffDisabledNeverBlocks(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 100})
	k := l.Key("c")

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Record(k, false))
	}
	assert.Nil(t, l.Check(k).BlockedUntil)
}

func TestRecordAfterStoreDestroyed(t *testing.T) {
	store := cache.New(cache.Config{CleanupInterval: time.Hour})
	l := New(store, Config{Window: time.Minute, MaxRequests: 5})

	store.Destroy()

	err := l.Record(l.Key("c"), false)
	assert.ErrorIs(t, err, cache.ErrStoreDestroyed)

	// Checks degrade open: every key reads as fresh.
	d := l.Check(l.Key("c"))
	assert.False(t, d.Limited)
	assert.Equal(t, 5, d.Remaining)
}

func TestConcurrentRecordsSameKey(t *testing.T) {
	l := newTestLimiter(t, Config{Window: time.Minute, MaxRequests: 1000})
	k := l.Key("hot")

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for _i := 0; _i < goroutines; _i++ {
		go func() {
			defer wg.Done()
			for _i := 0; _i < perGoroutine; _i++ {
				_ = l.Record(k, false)
			}
		}()
	}
	wg.Wait()

	d := l.Check(k)
	assert.Equal(t, 1000-goroutines*perGoroutine, d.Remaining, "no lost updates under contention")
}

func TestDistinctKeysIsolated(t *testing.T) {
	l := newTestLimiter(t, Config{
		Window:      time.Minute,
		MaxRequests: 2,
		Backoff:     BackoffConfig{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2},
	})

	k1, k2 := l.Key("a"), l.Key("b")
	require.NoError(t, l.Record(k1, false))
	require.NoError(t, l.Record(k1, false))
	require.NoError(t, l.Record(k1, false))

	assert.True(t, l.Check(k1).Limited)
	d := l.Check(k2)
	assert.False(t, d.Limited)
	assert.Equal(t, 2, d.Remaining)
	assert.Nil(t, d.BlockedUntil)
}
