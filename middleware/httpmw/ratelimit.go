// Package httpmw adapts rate-limit decisions to net/http: a middleware that
// answers 429 with Retry-After, client-key extraction, and request ids. It
// is router-agnostic and composes with chi.
package httpmw

import (
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/edgegate/ratelimit/pkg/limiter"
)

// KeyFunc resolves the rate-limiting key from the request.
type KeyFunc func(*http.Request) (string, error)

// Options configure the rate-limit middleware.
type Options struct {
	// KeyFunc defaults to ClientIPKey.
	KeyFunc KeyFunc

	// Logger, when set, records requests the limiter could not serve.
	Logger *zap.Logger
}

// RateLimit enforces l on every request. Denied requests get a 429 with a
// Retry-After header; requests whose key cannot be resolved get a 400.
func RateLimit(l limiter.Limiter, opts Options) func(http.Handler) http.Handler {
	keyFunc := opts.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := keyFunc(r)
			if err != nil {
				http.Error(w, "invalid rate limit key", http.StatusBadRequest)
				return
			}

			dec, err := l.Allow(r.Context(), key)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Error("rate limiter unavailable",
						zap.String("key", key),
						zap.Error(err))
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}

			if !math.IsInf(dec.Remaining, 1) {
				w.Header().Set("X-RateLimit-Remaining",
					strconv.FormatInt(int64(dec.Remaining), 10))
			}

			if !dec.Allow {
				if v := RetryAfterHeaderValue(dec.RetryAfter); v != "" {
					w.Header().Set("Retry-After", v)
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
