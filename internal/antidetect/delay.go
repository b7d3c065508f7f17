package antidetect

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/vishalm/serp-forge/internal/policy/pause"
)

// Delayer waits a uniformly random duration in [Min, Max] before each fetch.
type Delayer struct {
	min, max time.Duration
	pauser   pause.Controller
	jitter   func(n int64) int64
}

// NewDelayer returns a Delayer; a zero range makes Wait a no-op.
func NewDelayer(minDelay, maxDelay time.Duration) *Delayer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Delayer{min: minDelay, max: maxDelay, pauser: pause.Timer{}, jitter: rand.Int64N}
}

// Next returns the next delay without waiting.
func (d *Delayer) Next() time.Duration {
	span := int64(d.max - d.min)
	if span <= 0 {
		return d.min
	}
	return d.min + time.Duration(d.jitter(span+1))
}

// Wait sleeps for Next() or until ctx ends.
func (d *Delayer) Wait(ctx context.Context) error {
	if d == nil || d.max <= 0 {
		return nil
	}
	return d.pauser.Pause(ctx, d.Next())
}
