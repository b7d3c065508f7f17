// Package retry re-runs failed upstream calls with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/policy/pause"
	"github.com/vishalm/serp-forge/internal/serp"
)

// Config controls attempts and delays.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter spreads each delay uniformly over [delay/2, delay).
	Jitter bool
}

// ExponentialPolicy retries with delays of BaseDelay * 2^attempt, capped at MaxDelay.
type ExponentialPolicy struct {
	cfg    Config
	pauser pause.Controller
	logger *zap.Logger
}

// New builds a policy, filling unset fields with defaults.
func New(cfg Config, logger *zap.Logger) *ExponentialPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 4 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExponentialPolicy{cfg: cfg, pauser: pause.Timer{}, logger: logger}
}

// WithPauser swaps the waiting strategy (tests use a recorder).
func (p *ExponentialPolicy) WithPauser(c pause.Controller) *ExponentialPolicy {
	p.pauser = c
	return p
}

// ShouldRetry decides whether err merits another attempt after attempt (0-based) failed.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt+1 >= p.cfg.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var validationErr *serp.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	var upstreamErr *serp.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Retryable()
	}
	// transport failures
	return true
}

// Backoff returns the wait before the attempt following attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	if !p.cfg.Jitter {
		return time.Duration(delay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// The last error is returned unchanged so callers can inspect it.
func (p *ExponentialPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		delay := p.Backoff(attempt)
		p.logger.Warn("retrying after failure",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.cfg.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if perr := p.pauser.Pause(ctx, delay); perr != nil {
			return fmt.Errorf("retry backoff: %w", errors.Join(err, perr))
		}
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
