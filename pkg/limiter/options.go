package limiter

import (
	"math"
	"time"
)

// Option configures a Redis-backed limiter.
type Option func(*redisOptions)

type redisOptions struct {
	prefix               string
	timeout              time.Duration
	mode                 FailureMode
	failClosedRetryAfter time.Duration
	recorder             MetricsRecorder
	clock                Clock
}

func defaultRedisOptions() redisOptions {
	return redisOptions{
		prefix:               "rate:",
		timeout:              time.Second,
		mode:                 FailOpen,
		failClosedRetryAfter: time.Second,
		recorder:             &NoOpMetricsRecorder{},
		clock:                systemClock,
	}
}

// degraded is the decision handed out when the store is unreachable. It is
// the whole failure-mode policy: no retry, no error, just a decision.
func (o *redisOptions) degraded() Decision {
	if o.mode == FailClosed {
		return Decision{Allow: false, RetryAfter: o.failClosedRetryAfter, Degraded: true}
	}
	return Decision{Allow: true, Remaining: math.Inf(1), Degraded: true}
}

// WithPrefix sets the Redis key prefix (default "rate:"). The prefix is the
// namespace that keeps several limiters sharing one Redis apart.
func WithPrefix(prefix string) Option {
	return func(o *redisOptions) { o.prefix = prefix }
}

// WithTimeout sets the per-call deadline for Redis operations (default 1s).
// A timed-out call is treated like any other store failure.
func WithTimeout(d time.Duration) Option {
	return func(o *redisOptions) { o.timeout = d }
}

// WithFailureMode selects fail-open or fail-closed behavior during store
// outages (default FailOpen).
func WithFailureMode(mode FailureMode) Option {
	return func(o *redisOptions) { o.mode = mode }
}

// WithFailClosedRetryAfter sets the retry hint attached to denials issued
// while failing closed (default 1s).
func WithFailClosedRetryAfter(d time.Duration) Option {
	return func(o *redisOptions) { o.failClosedRetryAfter = d }
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(o *redisOptions) { o.recorder = r }
}

// WithClock overrides the clock; the Redis transactions treat the supplied
// timestamps as authoritative.
func WithClock(c Clock) Option {
	return func(o *redisOptions) { o.clock = c }
}

// MemoryOption configures an in-memory limiter.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	clock         Clock
	sweepInterval time.Duration
	recorder      MetricsRecorder
}

func defaultMemoryOptions() memoryOptions {
	return memoryOptions{
		clock:         systemClock,
		sweepInterval: 30 * time.Second,
		recorder:      &NoOpMetricsRecorder{},
	}
}

// WithMemoryClock overrides the clock used by an in-memory limiter.
func WithMemoryClock(c Clock) MemoryOption {
	return func(o *memoryOptions) { o.clock = c }
}

// WithSweepInterval sets how often idle keys are reclaimed on access
// (default 30s).
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.sweepInterval = d }
}

// WithMemoryRecorder injects a custom metrics backend.
func WithMemoryRecorder(r MetricsRecorder) MemoryOption {
	return func(o *memoryOptions) { o.recorder = r }
}
