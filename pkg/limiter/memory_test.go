package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenBucket_Exhaustion(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemoryTokenBucket(
		TokenBucketConfig{Capacity: 5, RefillRate: 1},
		WithMemoryClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		dec, err := lim.Allow(ctx, "user_1")
		require.NoError(t, err)
		require.True(t, dec.Allow, "request %d was unexpectedly denied", i)
	}

	dec, err := lim.Allow(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, dec.Allow, "the 6th request should have been denied (capacity=5)")
	assert.Equal(t, time.Second, dec.RetryAfter)
}

func TestMemoryTokenBucket_Refill(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemoryTokenBucket(
		TokenBucketConfig{Capacity: 1, RefillRate: 10},
		WithMemoryClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	dec, _ := lim.Allow(ctx, "user_1")
	require.True(t, dec.Allow)

	dec, _ = lim.Allow(ctx, "user_1")
	require.False(t, dec.Allow, "should be denied immediately")

	clk.Advance(150 * time.Millisecond)
	dec, _ = lim.Allow(ctx, "user_1")
	assert.True(t, dec.Allow, "one token refills every 100ms; 150ms should be enough")
}

func TestMemoryTokenBucket_WeightedCost(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemoryTokenBucket(
		TokenBucketConfig{Capacity: 10, RefillRate: 0},
		WithMemoryClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	dec, err := lim.AllowN(ctx, "batch", 7.5)
	require.NoError(t, err)
	require.True(t, dec.Allow)
	assert.InDelta(t, 2.5, dec.Remaining, 1e-9)

	dec, err = lim.AllowN(ctx, "batch", 3)
	require.NoError(t, err)
	assert.False(t, dec.Allow)
	assert.InDelta(t, 2.5, dec.Remaining, 1e-9)
}

func TestMemoryTokenBucket_NoOverspendUnderConcurrency(t *testing.T) {
	// K callers race for K-1 tokens with no refill: exactly one loses,
	// regardless of interleaving.
	const k = 32
	lim, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: k - 1, RefillRate: 0})
	require.NoError(t, err)

	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			dec, err := lim.Allow(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			if dec.Allow {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(k-1), allowed.Load())
	assert.Equal(t, int64(1), denied.Load())
}

func TestMemoryTokenBucket_SweepsIdleKeys(t *testing.T) {
	clk := newFakeClock(0)
	// Capacity 1 at 1000 tokens/sec: time-to-full 1ms, so the idle TTL is
	// dominated by the one-minute margin.
	lim, err := NewMemoryTokenBucket(
		TokenBucketConfig{Capacity: 1, RefillRate: 1000},
		WithMemoryClock(clk.Now),
		WithSweepInterval(time.Millisecond),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = lim.Allow(ctx, "idle")
	require.NoError(t, err)
	require.Equal(t, 1, lim.activeKeys())

	clk.Advance(2 * time.Minute)
	_, err = lim.Allow(ctx, "active")
	require.NoError(t, err)

	assert.Equal(t, 1, lim.activeKeys(), "the idle key should have been reclaimed")
}

func TestMemoryTokenBucket_IndependentKeys(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemoryTokenBucket(
		TokenBucketConfig{Capacity: 1, RefillRate: 0},
		WithMemoryClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	dec, _ := lim.Allow(ctx, "a")
	require.True(t, dec.Allow)
	dec, _ = lim.Allow(ctx, "a")
	require.False(t, dec.Allow)

	dec, _ = lim.Allow(ctx, "b")
	assert.True(t, dec.Allow, "key b has its own bucket")
}

func TestMemorySlidingWindow_WindowExactness(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemorySlidingWindow(
		SlidingWindowConfig{Window: time.Second, MaxRequests: 3},
		WithMemoryClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dec, err := lim.Allow(ctx, "user_1")
		require.NoError(t, err)
		require.True(t, dec.Allow, "request %d was unexpectedly denied", i)
	}

	clk.Advance(999 * time.Millisecond)
	dec, _ := lim.Allow(ctx, "user_1")
	require.False(t, dec.Allow, "window still holds 3 requests at t=999ms")
	assert.Equal(t, time.Millisecond, dec.RetryAfter)

	clk.Advance(2 * time.Millisecond)
	dec, _ = lim.Allow(ctx, "user_1")
	assert.True(t, dec.Allow, "the t=0 requests have aged out at t=1001ms")
}

func TestMemorySlidingWindow_SweepsIdleKeys(t *testing.T) {
	clk := newFakeClock(0)
	lim, err := NewMemorySlidingWindow(
		SlidingWindowConfig{Window: 100 * time.Millisecond, MaxRequests: 1},
		WithMemoryClock(clk.Now),
		WithSweepInterval(time.Millisecond),
	)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = lim.Allow(ctx, "idle")
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = lim.Allow(ctx, "active")
	require.NoError(t, err)

	assert.Equal(t, 1, lim.activeKeys(), "the idle key should have been reclaimed")
}

func TestMemoryLimiters_InvalidConfig(t *testing.T) {
	_, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 0, RefillRate: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemorySlidingWindow(SlidingWindowConfig{Window: 0, MaxRequests: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemorySlidingWindow(SlidingWindowConfig{Window: time.Second, MaxRequests: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryLimiters_BadArguments(t *testing.T) {
	tb, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: 0})
	require.NoError(t, err)

	_, err = tb.Allow(context.Background(), "")
	assert.True(t, errors.Is(err, ErrEmptyKey))

	_, err = tb.AllowN(context.Background(), "k", 0)
	assert.True(t, errors.Is(err, ErrInvalidCost))

	sw, err := NewMemorySlidingWindow(SlidingWindowConfig{Window: time.Second, MaxRequests: 1})
	require.NoError(t, err)

	_, err = sw.Allow(context.Background(), "")
	assert.True(t, errors.Is(err, ErrEmptyKey))
}

func BenchmarkMemoryTokenBucket_Allow(b *testing.B) {
	lim, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 100000, RefillRate: 1000})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		lim.Allow(ctx, "user_1")
	}
}
