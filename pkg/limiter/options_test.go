package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestRedisTokenBucket_Options(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	cfg := TokenBucketConfig{Capacity: 1, RefillRate: 1}

	t.Run("WithPrefix", func(t *testing.T) {
		prefix := "custom_app:"
		key := fmt.Sprintf("opt_test_%d", time.Now().UnixNano())

		lim, err := NewRedisTokenBucket(client, cfg, WithPrefix(prefix))
		if err != nil {
			t.Fatalf("Failed to create limiter: %v", err)
		}

		if _, err := lim.Allow(ctx, key); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}

		exists, err := client.Exists(ctx, prefix+key).Result()
		if err != nil {
			t.Fatalf("Redis Exists failed: %v", err)
		}
		if exists == 0 {
			t.Errorf("Expected key %s to exist, but it does not", prefix+key)
		}
	})

	t.Run("WithTimeout", func(t *testing.T) {
		_, err := NewRedisTokenBucket(client, cfg, WithTimeout(10*time.Millisecond))
		if err != nil {
			t.Errorf("WithTimeout should not cause error on valid client: %v", err)
		}
	})

	t.Run("WithClock", func(t *testing.T) {
		clk := newFakeClock(time.Now().UnixMilli())
		lim, err := NewRedisTokenBucket(client, TokenBucketConfig{Capacity: 1, RefillRate: 1000}, WithClock(clk.Now))
		if err != nil {
			t.Fatal(err)
		}
		key := fmt.Sprintf("opt_clock_%d", time.Now().UnixNano())

		dec, _ := lim.Allow(ctx, key)
		if !dec.Allow {
			t.Fatal("Expected first request to be allowed")
		}
		dec, _ = lim.Allow(ctx, key)
		if dec.Allow {
			t.Fatal("Expected second request on the same instant to be denied")
		}

		// The injected timestamp, not the wall clock, drives refill.
		clk.Advance(time.Second)
		dec, _ = lim.Allow(ctx, key)
		if !dec.Allow {
			t.Error("Expected refill after advancing the injected clock")
		}
	})
}

func TestRedisLimiters_ConstructionErrors(t *testing.T) {
	client := unreachableClient()

	if _, err := NewRedisTokenBucket(nil, TokenBucketConfig{Capacity: 1, RefillRate: 1}); err == nil {
		t.Error("Expected an error for a nil client")
	}
	if _, err := NewRedisTokenBucket(client, TokenBucketConfig{Capacity: 0, RefillRate: 1}); err == nil {
		t.Error("Expected an error for non-positive capacity")
	}
	if _, err := NewRedisSlidingWindow(client, SlidingWindowConfig{Window: -time.Second, MaxRequests: 1}); err == nil {
		t.Error("Expected an error for a negative window")
	}
}
