package daq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayQueueDropsWhenFull(t *testing.T) {
	q := NewDisplayQueue(MonitorConfig{QueueSize: 2, DisplayDigitizer: 0}, testLogger())

	rec := Record{EventNumber: 1}
	assert.True(t, q.Offer(0, rec))
	assert.True(t, q.Offer(0, rec))
	assert.False(t, q.Offer(0, rec), "third offer overflows the queue")

	assert.Equal(t, uint64(1), q.Dropped())

	// The two buffered frames are still intact.
	assert.Len(t, q.Frames(), 2)
}

func TestDisplayQueueFiltersOtherDigitizers(t *testing.T) {
	q := NewDisplayQueue(MonitorConfig{QueueSize: 2, DisplayDigitizer: 1}, testLogger())

	assert.False(t, q.Offer(0, Record{}))
	assert.True(t, q.Offer(1, Record{}))
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestDisplayQueueCloseIsIdempotent(t *testing.T) {
	q := NewDisplayQueue(MonitorConfig{QueueSize: 1}, testLogger())
	q.Offer(0, Record{})
	q.Close()
	q.Close()

	_, ok := <-q.Frames()
	assert.True(t, ok, "buffered frame survives close")
	_, ok = <-q.Frames()
	assert.False(t, ok)
}
