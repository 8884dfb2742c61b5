package daq

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// DisplaySink receives waveform snapshots for live monitoring. Offer must
// never block: the acquisition loop calls it inline between polls, and a
// slow consumer must cost dropped frames, not dropped triggers.
type DisplaySink interface {
	Offer(deviceID int, rec Record) bool
}

// NopDisplay discards everything. Used when monitoring is disabled.
type NopDisplay struct{}

func (NopDisplay) Offer(int, Record) bool { return true }

// DisplayQueue is a bounded hand-off between the acquisition loops and a
// monitor consumer. When the buffer is full the newest record is dropped
// and counted; the producers are never blocked or slowed.
type DisplayQueue struct {
	ch      chan DisplayFrame
	cfg     MonitorConfig
	dropped atomic.Uint64
	offered atomic.Uint64
	log     *slog.Logger

	closeOnce sync.Once

	droppedTotal prometheus.Counter
}

// DisplayFrame is one record tagged with its source digitizer.
type DisplayFrame struct {
	DeviceID int
	Record   Record
}

func NewDisplayQueue(cfg MonitorConfig, logger *slog.Logger) *DisplayQueue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &DisplayQueue{
		ch:  make(chan DisplayFrame, size),
		cfg: cfg,
		log: logger,
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "daq_display_dropped_total",
			Help: "Monitor frames dropped because the display queue was full.",
		}),
	}
}

// Collector exposes the drop counter for registration.
func (q *DisplayQueue) Collector() prometheus.Collector { return q.droppedTotal }

// Offer enqueues a frame if the source digitizer is the one selected for
// display and there is room. Returns false when the frame was filtered out
// or dropped.
func (q *DisplayQueue) Offer(deviceID int, rec Record) bool {
	if deviceID != q.cfg.DisplayDigitizer {
		return false
	}
	q.offered.Add(1)
	select {
	case q.ch <- DisplayFrame{DeviceID: deviceID, Record: rec}:
		return true
	default:
		q.dropped.Add(1)
		q.droppedTotal.Inc()
		return false
	}
}

// Frames is the consumer side of the queue.
func (q *DisplayQueue) Frames() <-chan DisplayFrame { return q.ch }

// Dropped returns how many frames were discarded because the queue was full.
func (q *DisplayQueue) Dropped() uint64 { return q.dropped.Load() }

// Close shuts the consumer channel. Safe to call more than once, but only
// after every producer has stopped offering.
func (q *DisplayQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
		if d := q.dropped.Load(); d > 0 {
			q.log.Info(fmt.Sprintf("Display queue: %d of %d frames dropped",
				d, q.offered.Load()), "module", "display")
		}
	})
}
