package limiter

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// shardCount bounds the number of guards regardless of key cardinality.
const shardCount = 64

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

type bucketEntry struct {
	state      bucketState
	lastSeenMs int64
}

type bucketShard struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
}

// MemoryTokenBucket is an in-process token-bucket rate limiter.
//
// It is safe for concurrent use by multiple goroutines: keys are spread over
// a fixed pool of mutex-guarded shards, and the whole read-modify-write of a
// decision runs under the key's shard lock. State is local to the process
// and is not shared across replicas; use RedisTokenBucket when you need one
// global budget.
//
// Idle keys are reclaimed by an on-access sweep so per-key state does not
// grow without bound under high key cardinality (per-IP limiting with
// churn). A bucket is swept once it has been untouched for the time it takes
// to refill to capacity, plus a minute of margin.
type MemoryTokenBucket struct {
	cfg         TokenBucketConfig
	opts        memoryOptions
	shards      [shardCount]bucketShard
	lastSweepMs atomic.Int64
}

// NewMemoryTokenBucket validates cfg and constructs an empty limiter.
func NewMemoryTokenBucket(cfg TokenBucketConfig, opts ...MemoryOption) (*MemoryTokenBucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := defaultMemoryOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &MemoryTokenBucket{cfg: cfg, opts: o}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*bucketEntry)
	}
	return m, nil
}

// Allow checks whether one request for key may proceed now.
func (m *MemoryTokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
	return m.AllowN(ctx, key, 1)
}

// AllowN checks whether a request costing the given number of tokens may
// proceed now. The cost may be fractional but must be positive.
func (m *MemoryTokenBucket) AllowN(ctx context.Context, key string, tokens float64) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if tokens <= 0 {
		return Decision{}, fmt.Errorf("tokens=%v: %w", tokens, ErrInvalidCost)
	}

	nowMs := m.opts.clock()
	m.maybeSweep(nowMs)

	sh := &m.shards[shardIndex(key)]
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &bucketEntry{state: newBucketState(m.cfg.Capacity, nowMs)}
		sh.entries[key] = e
	}
	dec := applyTokenBucket(&e.state, nowMs, m.cfg.Capacity, m.cfg.refillPerMs(), tokens)
	e.lastSeenMs = nowMs
	sh.mu.Unlock()

	m.opts.recorder.Add(metricCall, 1, nil)
	if !dec.Allow {
		m.opts.recorder.Add(metricDenied, 1, nil)
	}
	return dec, nil
}

// maybeSweep reclaims idle keys at most once per sweep interval. The CAS
// elects a single sweeping goroutine; everyone else carries on.
func (m *MemoryTokenBucket) maybeSweep(nowMs int64) {
	last := m.lastSweepMs.Load()
	if nowMs-last < m.opts.sweepInterval.Milliseconds() {
		return
	}
	if !m.lastSweepMs.CompareAndSwap(last, nowMs) {
		return
	}
	ttl := m.cfg.idleTTLMs()
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			if nowMs-e.lastSeenMs > ttl {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

func (m *MemoryTokenBucket) activeKeys() int {
	var n int
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

type windowShardEntry struct {
	log        windowLog
	lastSeenMs int64
}

type windowShard struct {
	mu      sync.Mutex
	entries map[string]*windowShardEntry
}

// MemorySlidingWindow is an in-process sliding-window-log rate limiter.
//
// It keeps the exact timestamps of admitted requests per key and admits a
// new request only while fewer than MaxRequests of them fall inside the
// trailing window. Concurrency and eviction work as in MemoryTokenBucket;
// a window's state is swept once it has been idle for one full window.
type MemorySlidingWindow struct {
	cfg         SlidingWindowConfig
	opts        memoryOptions
	shards      [shardCount]windowShard
	lastSweepMs atomic.Int64
}

// NewMemorySlidingWindow validates cfg and constructs an empty limiter.
func NewMemorySlidingWindow(cfg SlidingWindowConfig, opts ...MemoryOption) (*MemorySlidingWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := defaultMemoryOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &MemorySlidingWindow{cfg: cfg, opts: o}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*windowShardEntry)
	}
	return m, nil
}

// Allow checks whether one request for key may proceed now.
func (m *MemorySlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	nowMs := m.opts.clock()
	m.maybeSweep(nowMs)

	sh := &m.shards[shardIndex(key)]
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &windowShardEntry{}
		sh.entries[key] = e
	}
	dec := applyWindow(&e.log, nowMs, m.cfg.windowMs(), m.cfg.MaxRequests)
	e.lastSeenMs = nowMs
	sh.mu.Unlock()

	m.opts.recorder.Add(metricCall, 1, nil)
	if !dec.Allow {
		m.opts.recorder.Add(metricDenied, 1, nil)
	}
	return dec, nil
}

func (m *MemorySlidingWindow) maybeSweep(nowMs int64) {
	last := m.lastSweepMs.Load()
	if nowMs-last < m.opts.sweepInterval.Milliseconds() {
		return
	}
	if !m.lastSweepMs.CompareAndSwap(last, nowMs) {
		return
	}
	ttl := m.cfg.windowMs()
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			if nowMs-e.lastSeenMs > ttl {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

func (m *MemorySlidingWindow) activeKeys() int {
	var n int
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

var (
	_ Limiter = (*MemoryTokenBucket)(nil)
	_ Limiter = (*MemorySlidingWindow)(nil)
)
