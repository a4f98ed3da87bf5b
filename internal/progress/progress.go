// Package progress computes percent-complete and ETA figures for
// long-running batch scans.
package progress

import (
	"time"
)

// Tracker derives progress figures from elapsed time and completed work.
type Tracker struct {
	total   int64
	started time.Time
	now     func() time.Time
}

// NewTracker starts tracking a scan over total records.
func NewTracker(total int64) *Tracker {
	return newTracker(total, time.Now)
}

func newTracker(total int64, now func() time.Time) *Tracker {
	return &Tracker{
		total:   total,
		started: now(),
		now:     now,
	}
}

// Percent returns percent complete for done records.
func (t *Tracker) Percent(done int64) float64 {
	if t.total <= 0 {
		return 100
	}
	return float64(done) / float64(t.total) * 100
}

// Elapsed returns the time since tracking started.
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.started)
}

// Remaining estimates time left from the observed per-record rate. It
// returns zero until at least one record is done.
func (t *Tracker) Remaining(done int64) time.Duration {
	if done <= 0 || t.total <= 0 {
		return 0
	}
	elapsed := t.Elapsed()
	estimatedTotal := time.Duration(float64(elapsed) / float64(done) * float64(t.total))
	if estimatedTotal <= elapsed {
		return 0
	}
	return estimatedTotal - elapsed
}
