package daq

import "time"

// RateTracker estimates the event rate of one data source over a sliding
// time window. Timestamps are kept in arrival order; samples older than the
// window are evicted before every insert and every query, so the retained
// queue is bounded by window * peak rate.
type RateTracker struct {
	window time.Duration
	times  []time.Time
	now    func() time.Time
}

func NewRateTracker(window time.Duration) *RateTracker {
	return &RateTracker{
		window: window,
		now:    time.Now,
	}
}

// Record appends the current time to the sample queue.
func (r *RateTracker) Record() {
	now := r.now()
	r.times = append(r.times, now)
	r.evict(now)
}

// Rate returns the current event rate in events per second, measured across
// the span of the retained samples rather than the nominal window. A sparse
// stream therefore reports a rate close to its true event spacing instead
// of count-divided-by-window. Fewer than two retained samples yield 0.
func (r *RateTracker) Rate() float64 {
	r.evict(r.now())
	if len(r.times) < 2 {
		return 0
	}
	span := r.times[len(r.times)-1].Sub(r.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(r.times)-1) / span
}

// Reset clears the sample queue.
func (r *RateTracker) Reset() {
	r.times = r.times[:0]
}

func (r *RateTracker) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.times) && r.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.times = append(r.times[:0], r.times[i:]...)
	}
}
