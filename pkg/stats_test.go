package daq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatisticsRecordAndSnapshot(t *testing.T) {
	stats := NewStatisticsRegistry(2, 10*time.Second, testLogger())

	stats.Record(0)
	stats.Record(0)
	stats.Record(0)
	stats.Record(1)

	snaps := stats.Snapshot()
	assert.Len(t, snaps, 2)
	assert.Equal(t, uint64(3), snaps[0].Count)
	assert.Equal(t, uint64(1), snaps[1].Count)
	assert.Equal(t, uint64(4), stats.TotalEvents())
}

func TestStatisticsOutOfRangeIsNoOp(t *testing.T) {
	stats := NewStatisticsRegistry(1, 10*time.Second, testLogger())

	stats.Record(-1)
	stats.Record(5)

	assert.Equal(t, uint64(0), stats.TotalEvents())
}

func TestStatisticsReset(t *testing.T) {
	stats := NewStatisticsRegistry(1, 10*time.Second, testLogger())
	stats.Record(0)
	stats.Record(0)

	stats.Reset()

	assert.Equal(t, uint64(0), stats.TotalEvents())
	snaps := stats.Snapshot()
	assert.Equal(t, uint64(0), snaps[0].Count)
	assert.Equal(t, 0.0, snaps[0].WindowedRate)
}

func TestStatisticsReportThrottle(t *testing.T) {
	stats := NewStatisticsRegistry(1, 10*time.Second, testLogger())
	base := time.Now()
	current := base
	stats.now = func() time.Time { return current }

	stats.Report(true)
	first := stats.lastReport

	// Within the interval an unforced report is suppressed.
	current = base.Add(time.Second)
	stats.Report(false)
	assert.Equal(t, first, stats.lastReport)

	// A forced one is not.
	stats.Report(true)
	assert.Equal(t, current, stats.lastReport)

	// And past the interval an unforced report goes through.
	current = base.Add(10 * time.Second)
	stats.Report(false)
	assert.Equal(t, current, stats.lastReport)
}

func TestStatisticsAverageRate(t *testing.T) {
	stats := NewStatisticsRegistry(1, 10*time.Second, testLogger())
	base := time.Now()
	current := base
	stats.now = func() time.Time { return current }
	stats.Reset() // pin startTime to the fake clock

	for i := 0; i < 10; i++ {
		stats.Record(0)
	}
	current = base.Add(5 * time.Second)

	snaps := stats.Snapshot()
	assert.InDelta(t, 2.0, snaps[0].AverageRate, 1e-9)
}
