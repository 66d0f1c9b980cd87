package traffic

import (
	"sync"
	"time"
)

// retention bounds how far back any window can look.
const retention = 5 * time.Minute

var defaultTracker = NewTracker(time.Now)

// RecordLive records a forecast served from the provider or a fresh cache entry.
func RecordLive() {
	defaultTracker.RecordLive()
}

// RecordDegraded records a forecast served stale or from static fallback.
func RecordDegraded() {
	defaultTracker.RecordDegraded()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RequestCount returns the number of outcomes (live + degraded + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// DegradedRate returns (degradedCount, totalCount) within the window. totalCount = live + degraded (denied excluded).
func DegradedRate(window time.Duration) (degraded, total int) {
	return defaultTracker.DegradedRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
// Single source of truth for health (overload from RequestCount, degraded from DegradedRate).
type Tracker struct {
	mu            sync.Mutex
	now           func() time.Time
	liveTimes     []time.Time
	degradedTimes []time.Time
	deniedTimes   []time.Time
}

// NewTracker returns a Tracker using now as its clock.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// RecordLive records a live or fresh-cache outcome.
func (t *Tracker) RecordLive() {
	t.recordOutcome(&t.liveTimes)
}

// RecordDegraded records a stale or fallback outcome.
func (t *Tracker) RecordDegraded() {
	t.recordOutcome(&t.degradedTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns the total number of outcomes within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countInWindow(t.liveTimes, cutoff) +
		countInWindow(t.degradedTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.now().Add(-window))
}

// DegradedRate returns (degradedCount, totalCount) within the window; denials are excluded.
func (t *Tracker) DegradedRate(window time.Duration) (degraded, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	d := countInWindow(t.degradedTimes, cutoff)
	return d, d + countInWindow(t.liveTimes, cutoff)
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.liveTimes = nil
	t.degradedTimes = nil
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

// pruneLocked drops timestamps older than retention. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.liveTimes)
	prune(&t.degradedTimes)
	prune(&t.deniedTimes)
}
