// Package limiter answers, per request, "is this key allowed to proceed
// now, and if not, when may it retry?" under a configured rate budget.
//
// The primary entry point is the Limiter interface:
//
//	dec, err := l.Allow(ctx, key)
//
// The returned Decision contains whether the request is allowed, how much
// budget remains, and a retry hint for callers that want to set rate-limit
// headers (for example, Retry-After).
//
// # Algorithms
//
// Two admission algorithms are provided:
//
//   - Token bucket: each key holds a capped token balance that refills
//     continuously at a configured rate. A request spends tokens up front,
//     so bursts up to the capacity are allowed while the long-term average
//     rate is enforced. Balances are fractional; arithmetic is exact under
//     real-valued time.
//
//   - Sliding-window log: each key keeps the exact timestamps of admitted
//     requests and admits a new one only while fewer than MaxRequests fall
//     inside the trailing window. Unlike fixed windows there is no boundary
//     burst: the window slides continuously.
//
// # Backends
//
// Each algorithm comes in two settings with the same Allow API:
//
//   - MemoryTokenBucket / MemorySlidingWindow: in-process state behind
//     per-key mutual exclusion, with idle keys reclaimed by a TTL sweep.
//     State is local to the process, so limits are per replica.
//
//   - RedisTokenBucket / RedisSlidingWindow: state in a shared Redis store.
//     The whole check-and-update executes as one Lua script, so concurrent
//     callers across processes can never jointly overspend a budget. A
//     decision is identical no matter which process asked.
//
// # Failure modes
//
// Redis-backed limiters never surface store failures as errors. A failed or
// timed-out transaction is converted into a degraded Decision by the
// FailureMode fixed at construction: FailOpen admits the request (with
// Remaining reported as +Inf, since the true balance is unknown), FailClosed
// denies it with a configured retry hint. The limiter does not retry the
// store; retrying is the caller's call, guarded by its own budget.
//
// # Time
//
// Limiters obtain time from an injectable Clock returning Unix milliseconds.
// Supplied timestamps are treated as authoritative; a clock that moves
// backwards is clamped, never subtracted.
//
// # Configuration
//
// Constructors use the functional options pattern:
//
//	l, err := limiter.NewRedisTokenBucket(client,
//		limiter.TokenBucketConfig{Capacity: 10, RefillRate: 5},
//		limiter.WithPrefix("myapp:rate:"),
//		limiter.WithTimeout(500*time.Millisecond),
//		limiter.WithFailureMode(limiter.FailClosed),
//	)
//
// Metrics can be bridged to any backend via WithRecorder, and WithLogging
// wraps any Limiter with structured logging of denials and outages.
package limiter
