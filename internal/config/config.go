// Package config loads the example server's settings from the environment.
// Every knob is an RL_-prefixed variable (RL_CAPACITY, RL_FAILURE_MODE, ...)
// with a sensible default, so the binary runs with no configuration at all.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Algorithm names.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmSlidingWindow = "sliding_window"
)

// Failure mode names.
const (
	FailureModeOpen   = "fail_open"
	FailureModeClosed = "fail_closed"
)

// Settings is the example server's configuration.
type Settings struct {
	RedisURL string `mapstructure:"redis_url"`

	Backend   string `mapstructure:"backend"`
	Algorithm string `mapstructure:"algorithm"`

	// Token bucket knobs.
	Capacity         float64 `mapstructure:"capacity"`
	RefillRatePerSec float64 `mapstructure:"refill_rate_per_sec"`

	// Sliding window knobs.
	WindowSize  time.Duration `mapstructure:"window_size"`
	MaxRequests int           `mapstructure:"max_requests"`

	KeyPrefix   string `mapstructure:"key_prefix"`
	FailureMode string `mapstructure:"failure_mode"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr is the listen address derived from Host and Port.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads settings from RL_* environment variables over built-in
// defaults.
func Load() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("RL")
	v.AutomaticEnv()

	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("backend", BackendRedis)
	v.SetDefault("algorithm", AlgorithmTokenBucket)
	v.SetDefault("capacity", 10.0)
	v.SetDefault("refill_rate_per_sec", 5.0)
	v.SetDefault("window_size", time.Second)
	v.SetDefault("max_requests", 10)
	v.SetDefault("key_prefix", "rate:")
	v.SetDefault("failure_mode", FailureModeOpen)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch s.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	switch s.Algorithm {
	case AlgorithmTokenBucket, AlgorithmSlidingWindow:
	default:
		return fmt.Errorf("unknown algorithm %q", s.Algorithm)
	}
	switch s.FailureMode {
	case FailureModeOpen, FailureModeClosed:
	default:
		return fmt.Errorf("unknown failure mode %q", s.FailureMode)
	}
	return nil
}
