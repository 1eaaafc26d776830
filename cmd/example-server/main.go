// Command example-server runs a small HTTP service that rate-limits
// requests per client IP. The backend, algorithm, and budget come from
// RL_-prefixed environment variables; see internal/config.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edgegate/ratelimit/internal/config"
	"github.com/edgegate/ratelimit/middleware/httpmw"
	"github.com/edgegate/ratelimit/pkg/limiter"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load settings", zap.Error(err))
	}

	lim, err := buildLimiter(cfg)
	if err != nil {
		logger.Fatal("build limiter", zap.Error(err))
	}
	lim = limiter.WithLogging(lim, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(httpmw.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Group(func(g chi.Router) {
		g.Use(httpmw.RateLimit(lim, httpmw.Options{Logger: logger}))
		g.Get("/api/ping", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("pong\n"))
		})
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Addr()),
			zap.String("backend", cfg.Backend),
			zap.String("algorithm", cfg.Algorithm))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func buildLimiter(cfg config.Settings) (limiter.Limiter, error) {
	if cfg.Backend == config.BackendMemory {
		switch cfg.Algorithm {
		case config.AlgorithmSlidingWindow:
			return limiter.NewMemorySlidingWindow(limiter.SlidingWindowConfig{
				Window:      cfg.WindowSize,
				MaxRequests: cfg.MaxRequests,
			})
		default:
			return limiter.NewMemoryTokenBucket(limiter.TokenBucketConfig{
				Capacity:   cfg.Capacity,
				RefillRate: cfg.RefillRatePerSec,
			})
		}
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	mode := limiter.FailOpen
	if cfg.FailureMode == config.FailureModeClosed {
		mode = limiter.FailClosed
	}
	opts := []limiter.Option{
		limiter.WithPrefix(cfg.KeyPrefix),
		limiter.WithFailureMode(mode),
	}

	switch cfg.Algorithm {
	case config.AlgorithmSlidingWindow:
		return limiter.NewRedisSlidingWindow(client, limiter.SlidingWindowConfig{
			Window:      cfg.WindowSize,
			MaxRequests: cfg.MaxRequests,
		}, opts...)
	default:
		return limiter.NewRedisTokenBucket(client, limiter.TokenBucketConfig{
			Capacity:   cfg.Capacity,
			RefillRate: cfg.RefillRatePerSec,
		}, opts...)
	}
}
