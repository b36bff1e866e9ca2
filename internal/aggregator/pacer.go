package aggregator

import (
	"context"
	"time"
)

// Pacer spaces successive upstream fetches during a bulk operation. Tests
// inject a zero-delay pacer to run deterministically without wall-clock
// waits.
type Pacer interface {
	Pause(ctx context.Context) error
}

// delayPacer waits a fixed duration, honoring context cancellation so a
// disconnected client does not keep the batch alive.
type delayPacer struct {
	d time.Duration
}

// NewDelayPacer returns a Pacer that sleeps d between upstream fetches.
// d <= 0 yields a pacer that never waits.
func NewDelayPacer(d time.Duration) Pacer {
	return &delayPacer{d: d}
}

func (p *delayPacer) Pause(ctx context.Context) error {
	if p.d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
