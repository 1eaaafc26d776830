package limiter

import (
	"math"
	"time"
)

// minRefillPerMs guards TTL arithmetic against division by zero for buckets
// that never replenish.
const minRefillPerMs = 1e-9

// bucketState is the per-key token bucket state. The balance may be
// fractional; 0 <= tokens <= capacity holds at every observable point.
type bucketState struct {
	tokens       float64
	lastRefillMs int64
}

// newBucketState is the lazy initial state for a key seen for the first
// time: a full bucket observed at nowMs.
func newBucketState(capacity float64, nowMs int64) bucketState {
	return bucketState{tokens: capacity, lastRefillMs: nowMs}
}

// applyTokenBucket refills st up to nowMs and decides whether requested
// tokens may be spent. It mutates st in place; the caller must hold the
// key's guard. The Redis script in token_bucket.lua mirrors this function
// step for step.
func applyTokenBucket(st *bucketState, nowMs int64, capacity, refillPerMs, requested float64) Decision {
	delta := nowMs - st.lastRefillMs
	if delta < 0 {
		// Clock moved backwards; never subtract.
		delta = 0
	}
	refill := float64(delta) * refillPerMs
	if refill > 0 {
		st.tokens = math.Min(capacity, st.tokens+refill)
		// The timestamp only advances when something was refilled, so
		// fractional refill is not lost across same-millisecond calls.
		st.lastRefillMs = nowMs
	}

	if st.tokens >= requested {
		st.tokens -= requested
		return Decision{Allow: true, Remaining: st.tokens}
	}

	missing := requested - st.tokens
	var retryAfter time.Duration
	if refillPerMs > 0 {
		retryAfter = time.Duration(math.Ceil(missing/refillPerMs)) * time.Millisecond
	}
	return Decision{Allow: false, Remaining: st.tokens, RetryAfter: retryAfter}
}
