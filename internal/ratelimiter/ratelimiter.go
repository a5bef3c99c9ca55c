package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests to the same host. It is shared by all
// fetch goroutines of a run.
type RateLimiter struct {
	interval time.Duration
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	log      *slog.Logger
}

func New(interval time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		interval: max(interval, 0),
		limiters: make(map[string]*rate.Limiter),
		log:      log,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
// A nil RateLimiter or a zero interval never blocks.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.interval == 0 {
		return nil
	}

	limiter := rl.hostLimiter(host)

	if delay := getDelay(limiter); delay > 0 {
		rl.log.DebugContext(ctx, "Rate limiting request",
			"host", host,
			"delay", delay)
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for host %s: %w", host, err)
	}

	return nil
}

func (rl *RateLimiter) hostLimiter(host string) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(host))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.interval), hostBurst)
		rl.limiters[key] = limiter
	}

	return limiter
}

// getDelay estimates how long the next request would wait without taking a
// token, so concurrent waiters are not disturbed.
func getDelay(limiter *rate.Limiter) time.Duration {
	missing := 1 - limiter.TokensAt(time.Now())
	if missing <= 0 {
		return 0
	}

	return time.Duration(missing / float64(limiter.Limit()) * float64(time.Second))
}
