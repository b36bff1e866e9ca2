package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/ecowatch/air-quality-service/internal/models"
)

// flight is one in-progress upstream fetch that concurrent callers share.
// rec and err are written once before done is closed; readers must wait on
// done first.
type flight struct {
	done chan struct{}
	rec  models.AirQualityRecord
	err  error
}

// coalescer deduplicates concurrent cache misses for the same city: the
// first caller runs the fetch, later callers wait for its result instead of
// issuing their own upstream calls. Two cold-start bulk requests would
// otherwise each sweep the whole registry against rate-limited providers.
type coalescer struct {
	mu       sync.Mutex
	inFlight map[string]*flight
	timeout  time.Duration
}

func newCoalescer(timeout time.Duration) *coalescer {
	return &coalescer{
		inFlight: make(map[string]*flight),
		timeout:  timeout,
	}
}

// Do returns the result of fn for key, sharing one execution among concurrent
// callers. shared reports whether this caller waited on another caller's
// fetch rather than running its own.
func (c *coalescer) Do(ctx context.Context, key string, fn func() (models.AirQualityRecord, error)) (rec models.AirQualityRecord, shared bool, err error) {
	c.mu.Lock()
	if f, ok := c.inFlight[key]; ok {
		c.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		select {
		case <-f.done:
			return f.rec, true, f.err
		case <-waitCtx.Done():
			return models.AirQualityRecord{}, true, waitCtx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inFlight[key] = f
	c.mu.Unlock()

	f.rec, f.err = fn()

	// Remove before closing done: a caller arriving now starts a fresh
	// flight instead of receiving a result that may already be stale.
	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
	close(f.done)

	return f.rec, false, f.err
}
