package daq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateTrackerSpansRetainedSamples(t *testing.T) {
	tracker := NewRateTracker(10 * time.Second)
	base := time.Now()
	current := base
	tracker.now = func() time.Time { return current }

	// 5 samples one second apart span 4 seconds.
	for i := 0; i < 5; i++ {
		current = base.Add(time.Duration(i) * time.Second)
		tracker.Record()
	}
	assert.InDelta(t, 1.0, tracker.Rate(), 1e-9)
}

func TestRateTrackerFewSamples(t *testing.T) {
	tracker := NewRateTracker(10 * time.Second)
	assert.Equal(t, 0.0, tracker.Rate())

	tracker.Record()
	assert.Equal(t, 0.0, tracker.Rate(), "a single sample has no span")
}

func TestRateTrackerEvictsOldSamples(t *testing.T) {
	tracker := NewRateTracker(10 * time.Second)
	base := time.Now()
	current := base
	tracker.now = func() time.Time { return current }

	tracker.Record()
	current = base.Add(time.Second)
	tracker.Record()

	// Jump past the window: everything is evicted.
	current = base.Add(30 * time.Second)
	assert.Equal(t, 0.0, tracker.Rate())
}

func TestRateTrackerPartialEviction(t *testing.T) {
	tracker := NewRateTracker(10 * time.Second)
	base := time.Now()
	current := base
	tracker.now = func() time.Time { return current }

	// Two old samples and three recent ones one second apart.
	for _, offset := range []time.Duration{0, time.Second, 20 * time.Second, 21 * time.Second, 22 * time.Second} {
		current = base.Add(offset)
		tracker.Record()
	}
	// Only the last three survive, spanning 2 seconds.
	assert.InDelta(t, 1.0, tracker.Rate(), 1e-9)
	assert.Len(t, tracker.times, 3)
}

func TestRateTrackerReset(t *testing.T) {
	tracker := NewRateTracker(10 * time.Second)
	tracker.Record()
	tracker.Record()
	tracker.Reset()
	assert.Equal(t, 0.0, tracker.Rate())
}
