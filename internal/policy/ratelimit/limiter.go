// Package ratelimit spaces outbound calls to the search API with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/vishalm/serp-forge/internal/metrics"
)

// Limiter grants at most one acquisition per interval across all callers.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// MaxRequestsPerMinute caps upstream calls; <= 0 disables limiting.
	MaxRequestsPerMinute int
}

// New creates a Limiter with a burst of one, so every acquisition after the
// first waits 60/MaxRequestsPerMinute seconds after the previous grant.
func New(cfg Config) *Limiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	interval := time.Minute / time.Duration(cfg.MaxRequestsPerMinute)
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Interval is the minimum spacing between two grants.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until the caller may issue the next request or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limit wait: %w", ctxErr)
		}
		// Wait refuses up front when the next grant lies past the deadline.
		return fmt.Errorf("rate limit wait: %w: %w", context.DeadlineExceeded, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
