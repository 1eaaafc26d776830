package limiter

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

//go:embed sliding_window.lua
var slidingWindowScript string

// RedisTokenBucket enforces a token bucket against a shared Redis store.
//
// The whole check-and-update runs inside a Lua script, so concurrent callers
// from any number of processes each see a consistent pre-state and can never
// jointly overspend a key's budget. The limiter itself keeps no per-key
// state between calls.
//
// Store failures (connection errors, timeouts, protocol errors) are not
// returned to the caller: they are converted into a degraded Decision by the
// configured FailureMode. The limiter never retries a failed transaction.
type RedisTokenBucket struct {
	client *redis.Client
	script *redis.Script
	cfg    TokenBucketConfig
	opts   redisOptions
}

// NewRedisTokenBucket validates cfg and constructs a limiter on client. The
// script is registered with Redis on first use; EVALSHA cache misses fall
// back to EVAL transparently.
func NewRedisTokenBucket(client *redis.Client, cfg TokenBucketConfig, opts ...Option) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := defaultRedisOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisTokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		cfg:    cfg,
		opts:   o,
	}, nil
}

// Allow checks whether one request for key may proceed now.
func (r *RedisTokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
	return r.AllowN(ctx, key, 1)
}

// AllowN checks whether a request costing the given number of tokens may
// proceed now. The cost may be fractional but must be positive.
func (r *RedisTokenBucket) AllowN(ctx context.Context, key string, tokens float64) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}
	if tokens <= 0 {
		return Decision{}, fmt.Errorf("tokens=%v: %w", tokens, ErrInvalidCost)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	start := time.Now()
	res, err := r.script.Run(ctx, r.client, []string{r.opts.prefix + key},
		r.opts.clock(),      // ARGV[1] now_ms
		r.cfg.Capacity,      // ARGV[2]
		r.cfg.refillPerMs(), // ARGV[3]
		tokens,              // ARGV[4]
	).Result()
	r.opts.recorder.Add(metricCall, 1, nil)
	r.opts.recorder.Observe(metricLatency, time.Since(start).Seconds(), nil)
	if err != nil {
		r.opts.recorder.Add(metricStoreError, 1, nil)
		return r.opts.degraded(), nil
	}

	dec, perr := parseBucketReply(res)
	if perr != nil {
		// A malformed reply is a store failure like any other.
		r.opts.recorder.Add(metricStoreError, 1, nil)
		return r.opts.degraded(), nil
	}
	if !dec.Allow {
		r.opts.recorder.Add(metricDenied, 1, nil)
	}
	return dec, nil
}

func parseBucketReply(res interface{}) (Decision, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected script reply: %v", res)
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected allowed value: %v", values[0])
	}
	retryMs, ok := values[2].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected retry_after value: %v", values[2])
	}
	remaining, err := convertToFloat(values[1])
	if err != nil {
		return Decision{}, fmt.Errorf("unexpected tokens value: %w", err)
	}
	return Decision{
		Allow:      allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// RedisSlidingWindow enforces an exact sliding-window log against a shared
// Redis store. Admitted requests live in a sorted set scored by timestamp;
// a companion counter keeps members unique when timestamps collide. Both
// keys expire one window after the last transaction. Atomicity and failure
// handling work as in RedisTokenBucket.
type RedisSlidingWindow struct {
	client *redis.Client
	script *redis.Script
	cfg    SlidingWindowConfig
	opts   redisOptions
}

// NewRedisSlidingWindow validates cfg and constructs a limiter on client.
func NewRedisSlidingWindow(client *redis.Client, cfg SlidingWindowConfig, opts ...Option) (*RedisSlidingWindow, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := defaultRedisOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisSlidingWindow{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		cfg:    cfg,
		opts:   o,
	}, nil
}

// Allow checks whether one request for key may proceed now.
func (r *RedisSlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	windowKey := r.opts.prefix + key
	start := time.Now()
	res, err := r.script.Run(ctx, r.client, []string{windowKey, windowKey + ":seq"},
		r.opts.clock(),    // ARGV[1] now_ms
		r.cfg.windowMs(),  // ARGV[2]
		r.cfg.MaxRequests, // ARGV[3]
	).Result()
	r.opts.recorder.Add(metricCall, 1, nil)
	r.opts.recorder.Observe(metricLatency, time.Since(start).Seconds(), nil)
	if err != nil {
		r.opts.recorder.Add(metricStoreError, 1, nil)
		return r.opts.degraded(), nil
	}

	dec, perr := parseWindowReply(res)
	if perr != nil {
		r.opts.recorder.Add(metricStoreError, 1, nil)
		return r.opts.degraded(), nil
	}
	if !dec.Allow {
		r.opts.recorder.Add(metricDenied, 1, nil)
	}
	return dec, nil
}

func parseWindowReply(res interface{}) (Decision, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected script reply: %v", res)
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected allowed value: %v", values[0])
	}
	remaining, ok := values[1].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected remaining value: %v", values[1])
	}
	retryMs, ok := values[2].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected retry_after value: %v", values[2])
	}
	return Decision{
		Allow:      allowed == 1,
		Remaining:  float64(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

func convertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", val)
	}
}

var (
	_ Limiter = (*RedisTokenBucket)(nil)
	_ Limiter = (*RedisSlidingWindow)(nil)
)
