package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(start time.Time, advance *time.Duration) func() time.Time {
	return func() time.Time {
		return start.Add(*advance)
	}
}

func TestPercent(t *testing.T) {
	var elapsed time.Duration
	tracker := newTracker(2500, fixedClock(time.Unix(0, 0), &elapsed))

	assert.InDelta(t, 0.0, tracker.Percent(0), 0.001)
	assert.InDelta(t, 40.0, tracker.Percent(1000), 0.001)
	assert.InDelta(t, 100.0, tracker.Percent(2500), 0.001)
}

func TestPercentEmptyTotal(t *testing.T) {
	var elapsed time.Duration
	tracker := newTracker(0, fixedClock(time.Unix(0, 0), &elapsed))

	assert.InDelta(t, 100.0, tracker.Percent(0), 0.001)
}

func TestRemaining(t *testing.T) {
	var elapsed time.Duration
	tracker := newTracker(1000, fixedClock(time.Unix(0, 0), &elapsed))

	elapsed = 10 * time.Second
	// 250 of 1000 done in 10s implies 40s total, 30s left.
	assert.Equal(t, 30*time.Second, tracker.Remaining(250))
	assert.Equal(t, 10*time.Second, tracker.Elapsed())
}

func TestRemainingBeforeFirstRecord(t *testing.T) {
	var elapsed time.Duration
	tracker := newTracker(1000, fixedClock(time.Unix(0, 0), &elapsed))

	elapsed = 5 * time.Second
	assert.Equal(t, time.Duration(0), tracker.Remaining(0))
}

func TestRemainingWhenDone(t *testing.T) {
	var elapsed time.Duration
	tracker := newTracker(1000, fixedClock(time.Unix(0, 0), &elapsed))

	elapsed = 20 * time.Second
	assert.Equal(t, time.Duration(0), tracker.Remaining(1000))
}
