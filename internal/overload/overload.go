package overload

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordRequest records a request hitting the rate-limited path.
func RecordRequest() {
	defaultTracker.RecordRequest()
}

// RecordDenial records a rate-limit denial (429). Call from middleware when
// returning 429.
func RecordDenial() {
	defaultTracker.RecordDenial()
}

// RequestCount returns the number of requests on the rate-limited path within
// the given window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the given window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of request and denial timestamps on the
// rate-limited path. Feeds the in-window gauges and the health handler's
// load-shedding check.
type Tracker struct {
	mu           sync.Mutex
	requestTimes []time.Time
	deniedTimes  []time.Time
}

// RecordRequest records a request timestamp in the tracker.
func (t *Tracker) RecordRequest() {
	t.recordOutcome(&t.requestTimes)
}

// RecordDenial records a denial timestamp in the tracker.
func (t *Tracker) RecordDenial() {
	t.recordOutcome(&t.deniedTimes)
}

// recordOutcome appends the current timestamp and prunes old entries.
func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the number of requests within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.requestTimes, time.Now().Add(-window))
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, time.Now().Add(-window))
}

// Reset clears all recorded timestamps from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked removes timestamps older than 5 minutes, the widest window any
// consumer queries. Must be called with the mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.requestTimes)
	prune(&t.deniedTimes)
}
