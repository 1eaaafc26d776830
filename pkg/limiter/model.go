package limiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Clock supplies the current time in Unix milliseconds. Limiters never read
// the wall clock directly; tests inject a fake clock to control time.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixMilli() }

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	// Allow reports whether the request may proceed now.
	Allow bool

	// Remaining is the budget left after the decision is applied: tokens
	// for a token bucket, free slots for a sliding window. It is
	// math.Inf(1) on a fail-open degraded decision, where the true
	// balance is unknown.
	Remaining float64

	// RetryAfter is zero when allowed. When denied it is the time until
	// the request could next succeed. A zero RetryAfter on a denial from
	// a bucket with no refill rate means "no ETA", not "retry now".
	RetryAfter time.Duration

	// Degraded marks a decision produced by the failure-mode policy
	// because the shared store was unreachable.
	Degraded bool
}

// Limiter provides rate-limit decisions for a given key. Each Allow call has
// a fixed cost of one request; token-bucket limiters additionally expose
// AllowN for weighted costs.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// TokenBucketConfig defines a token bucket policy.
type TokenBucketConfig struct {
	// Capacity is the maximum token balance, and the balance a new key
	// starts with.
	Capacity float64

	// RefillRate is tokens added per second. Zero means the bucket never
	// replenishes.
	RefillRate float64
}

func (c TokenBucketConfig) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0: %w", ErrInvalidConfig)
	}
	if c.RefillRate < 0 {
		return fmt.Errorf("refill rate must be >= 0: %w", ErrInvalidConfig)
	}
	return nil
}

func (c TokenBucketConfig) refillPerMs() float64 { return c.RefillRate / 1000.0 }

// idleTTLMs is how long an untouched bucket is kept: the time it takes to
// refill back to capacity plus a one-minute margin. The Redis transaction
// applies the same formula via PEXPIRE.
func (c TokenBucketConfig) idleTTLMs() int64 {
	rate := c.refillPerMs()
	if rate < minRefillPerMs {
		rate = minRefillPerMs
	}
	return int64(math.Floor(c.Capacity/rate)) + 60_000
}

// SlidingWindowConfig defines a sliding-window-log policy.
type SlidingWindowConfig struct {
	// Window is the trailing interval requests are counted over.
	Window time.Duration

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
}

func (c SlidingWindowConfig) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0: %w", ErrInvalidConfig)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be > 0: %w", ErrInvalidConfig)
	}
	return nil
}

func (c SlidingWindowConfig) windowMs() int64 { return c.Window.Milliseconds() }

// FailureMode selects the behavior of a Redis-backed limiter when the store
// is unreachable. It is fixed at construction.
type FailureMode int

const (
	// FailOpen admits every request during a store outage.
	FailOpen FailureMode = iota

	// FailClosed denies every request during a store outage.
	FailClosed
)

func (m FailureMode) String() string {
	if m == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}
