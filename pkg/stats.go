package daq

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const reportInterval = 5 * time.Second

// DeviceSnapshot is the statistics view of one digitizer at a point in time.
type DeviceSnapshot struct {
	DeviceID     int
	Count        uint64
	WindowedRate float64
	AverageRate  float64
	Elapsed      time.Duration
}

type deviceStats struct {
	count      uint64
	startTime  time.Time
	lastUpdate time.Time
	tracker    *RateTracker
}

// StatisticsRegistry tracks event counts and rates for every digitizer in
// the run. Record is called by exactly one worker per device id; Snapshot
// and Report may run concurrently with writers and tolerate slightly stale
// aggregates.
type StatisticsRegistry struct {
	mu         sync.Mutex
	devices    []deviceStats
	lastReport time.Time
	now        func() time.Time
	log        *slog.Logger

	eventsTotal  *prometheus.CounterVec
	windowedRate *prometheus.GaugeVec
}

func NewStatisticsRegistry(nDevices int, window time.Duration, logger *slog.Logger) *StatisticsRegistry {
	s := &StatisticsRegistry{
		devices: make([]deviceStats, nDevices),
		now:     time.Now,
		log:     logger,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "daq_events_total",
			Help: "Events acquired per digitizer.",
		}, []string{"digitizer"}),
		windowedRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "daq_event_rate_hz",
			Help: "Windowed event rate per digitizer.",
		}, []string{"digitizer"}),
	}
	start := s.now()
	for i := range s.devices {
		s.devices[i] = deviceStats{
			startTime:  start,
			lastUpdate: start,
			tracker:    NewRateTracker(window),
		}
	}
	return s
}

// Collectors exposes the Prometheus metrics for registration. Registration
// is left to the caller so tests can use private registries.
func (s *StatisticsRegistry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.eventsTotal, s.windowedRate}
}

// Record counts one event for the given digitizer. An out-of-range id is a
// silent no-op: a misbehaving device must never crash the acquisition path.
func (s *StatisticsRegistry) Record(deviceID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID < 0 || deviceID >= len(s.devices) {
		return
	}
	d := &s.devices[deviceID]
	d.count++
	d.lastUpdate = s.now()
	d.tracker.Record()

	label := fmt.Sprintf("%d", deviceID)
	s.eventsTotal.WithLabelValues(label).Inc()
	s.windowedRate.WithLabelValues(label).Set(d.tracker.Rate())
}

// Snapshot returns the per-device statistics.
func (s *StatisticsRegistry) Snapshot() []DeviceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeviceSnapshot, len(s.devices))
	for i := range s.devices {
		d := &s.devices[i]
		elapsed := s.now().Sub(d.startTime)
		avg := 0.0
		if elapsed > 0 {
			avg = float64(d.count) / elapsed.Seconds()
		}
		out[i] = DeviceSnapshot{
			DeviceID:     i,
			Count:        d.count,
			WindowedRate: d.tracker.Rate(),
			AverageRate:  avg,
			Elapsed:      elapsed,
		}
	}
	return out
}

// TotalEvents returns the event count summed over all digitizers.
func (s *StatisticsRegistry) TotalEvents() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for i := range s.devices {
		total += s.devices[i].count
	}
	return total
}

// Report logs a status block, at most once per reportInterval unless force
// is set. The throttle bounds logging volume during high-rate runs.
func (s *StatisticsRegistry) Report(force bool) {
	s.mu.Lock()
	if !force && s.now().Sub(s.lastReport) < reportInterval {
		s.mu.Unlock()
		return
	}
	s.lastReport = s.now()
	s.mu.Unlock()

	snapshots := s.Snapshot()
	var total uint64

	s.log.Info("============================================================", "module", "stats")
	s.log.Info("DAQ Statistics", "module", "stats")
	for _, snap := range snapshots {
		total += snap.Count
		s.log.Info(fmt.Sprintf("Digitizer %d: %d events | Rate: %.1f evt/s (%.1f avg) | Runtime: %s",
			snap.DeviceID, snap.Count, snap.WindowedRate, snap.AverageRate,
			formatDuration(snap.Elapsed)), "module", "stats")
	}
	s.log.Info(fmt.Sprintf("Total Events: %d", total), "module", "stats")
	s.log.Info("============================================================", "module", "stats")
}

// Reset zeroes every device's counters and timers so statistics reflect
// only the current run.
func (s *StatisticsRegistry) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.now()
	for i := range s.devices {
		d := &s.devices[i]
		d.count = 0
		d.startTime = start
		d.lastUpdate = start
		d.tracker.Reset()
	}
	s.eventsTotal.Reset()
	s.windowedRate.Reset()
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %.0fs", int(secs)/60, float64(int(secs)%60))
	default:
		return fmt.Sprintf("%dh %dm %.0fs", int(secs)/3600, (int(secs)%3600)/60, float64(int(secs)%60))
	}
}
