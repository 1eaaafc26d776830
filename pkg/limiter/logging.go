package limiter

import (
	"context"

	"go.uber.org/zap"
)

type loggingLimiter struct {
	next   Limiter
	logger *zap.Logger
}

// WithLogging wraps next so that denied and degraded decisions are logged.
// Allowed, healthy decisions stay silent to keep the hot path quiet.
func WithLogging(next Limiter, logger *zap.Logger) Limiter {
	return &loggingLimiter{next: next, logger: logger}
}

func (l *loggingLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	dec, err := l.next.Allow(ctx, key)
	if err != nil {
		l.logger.Error("rate limit check failed",
			zap.String("key", key),
			zap.Error(err))
		return dec, err
	}

	switch {
	case dec.Degraded:
		l.logger.Warn("rate limit store unreachable, failure mode applied",
			zap.String("key", key),
			zap.Bool("allowed", dec.Allow))
	case !dec.Allow:
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Float64("remaining", dec.Remaining),
			zap.Duration("retry_after", dec.RetryAfter))
	}
	return dec, nil
}
