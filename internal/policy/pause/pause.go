// Package pause provides context-aware waiting used by retries and fetch delays.
package pause

import (
	"context"
	"fmt"
	"time"
)

// Controller suspends the caller for a duration or until ctx is done.
type Controller interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// Timer implements Controller with a real timer.
type Timer struct{}

// Pause waits for delay. It returns ctx.Err() wrapped if ctx ends first.
func (Timer) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
