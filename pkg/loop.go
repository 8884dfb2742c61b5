package daq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	// idleBackoff is slept after an empty poll so an idle device does not
	// spin a core while waiting for an external trigger.
	idleBackoff = 1 * time.Millisecond

	// emptyPollWarnThreshold flags a device that looks alive but never
	// triggers, usually a cabling or trigger-threshold problem.
	emptyPollWarnThreshold = 1000

	// highWaterRecords flags a poll draining more buffered events than the
	// loop is expected to keep up with.
	highWaterRecords = 100

	// overflowRecoveryPause lets the digitizer drain its buffers between
	// the stop and restart of an overflow recovery cycle.
	overflowRecoveryPause = 100 * time.Millisecond
)

// AcquisitionLoop drains one digitizer on its own goroutine: poll, persist
// every channel durably, offer the record to the display best-effort, and
// count it. The loop owns its session for its whole lifetime; a failure in
// one loop never touches the other devices.
type AcquisitionLoop struct {
	session *DeviceSession
	signals *Signals
	stats   *StatisticsRegistry
	display DisplaySink
	log     *slog.Logger

	// emptyWarnLimiter throttles the no-trigger warning, which would
	// otherwise repeat every emptyPollWarnThreshold polls on a dead input.
	emptyWarnLimiter *rate.Limiter

	sleep func(time.Duration)
}

func NewAcquisitionLoop(session *DeviceSession, signals *Signals, stats *StatisticsRegistry,
	display DisplaySink, logger *slog.Logger) *AcquisitionLoop {
	return &AcquisitionLoop{
		session:          session,
		signals:          signals,
		stats:            stats,
		display:          display,
		log:              logger,
		emptyWarnLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		sleep:            time.Sleep,
	}
}

// Run polls the device until the stop signal is raised, the context is
// cancelled, or a fatal error occurs. The device is always stopped on the
// way out, whatever the exit path. The returned error is nil for a clean
// stop and the terminating fault otherwise.
func (l *AcquisitionLoop) Run(ctx context.Context) error {
	id := l.session.ID()
	defer func() {
		if err := l.session.Stop(); err != nil {
			l.log.Warn(fmt.Sprintf("Error stopping digitizer %d on loop exit: %v", id, err),
				"module", "loop")
		}
	}()

	emptyPolls := 0
	overflowRecovered := false

	for {
		if l.signals.Stopped() {
			l.log.Info(fmt.Sprintf("Digitizer %d: stop signal received", id), "module", "loop")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := l.session.device.Poll(ctx)
		if err != nil {
			recovered, handleErr := l.handleDeviceError(err, &overflowRecovered)
			if handleErr != nil {
				return handleErr
			}
			if recovered {
				emptyPolls = 0
			}
			continue
		}

		if len(records) == 0 {
			emptyPolls++
			if emptyPolls >= emptyPollWarnThreshold {
				if l.emptyWarnLimiter.Allow() {
					l.log.Warn(fmt.Sprintf("Digitizer %d: %d consecutive empty polls, check trigger settings",
						id, emptyPolls), "module", "loop")
				}
				emptyPolls = 0
			}
			l.sleep(idleBackoff)
			continue
		}
		emptyPolls = 0
		overflowRecovered = false

		if len(records) > highWaterRecords {
			l.log.Warn(fmt.Sprintf("Digitizer %d: drained %d events in one poll, readout falling behind",
				id, len(records)), "module", "loop")
		}

		for _, rec := range records {
			if err := l.persist(rec); err != nil {
				l.log.Error(fmt.Sprintf("Digitizer %d: %v", id, err), "module", "loop")
				return err
			}
			l.display.Offer(id, rec)
			l.stats.Record(id)
		}
	}
}

// persist writes every channel of the record durably. Any write error is
// fatal for the loop.
func (l *AcquisitionLoop) persist(rec Record) error {
	perGroup := 9
	if l.session.cfg != nil {
		perGroup = l.session.cfg.ChannelsPerGroup
	}
	for _, ch := range rec.Channels {
		globalID := GlobalChannelID(ch.Group, ch.ChannelInGroup, perGroup)
		if err := l.session.writer.Write(globalID, rec.EventNumber, ch.Samples); err != nil {
			return err
		}
	}
	return nil
}

// handleDeviceError applies the structured fault policy. Timeouts are the
// idle case on an externally triggered system and are ignored. An overflow
// gets exactly one stop/pause/restart recovery cycle; a second overflow
// before any data arrives, or any other fault, terminates the loop.
func (l *AcquisitionLoop) handleDeviceError(err error, overflowRecovered *bool) (recovered bool, fatal error) {
	id := l.session.ID()

	devErr, ok := err.(*DeviceError)
	if !ok {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return false, err
		}
		l.log.Error(fmt.Sprintf("Digitizer %d: unclassified device fault: %v", id, err), "module", "loop")
		return false, err
	}

	switch devErr.Kind {
	case ErrKindTimeout:
		l.sleep(idleBackoff)
		return false, nil

	case ErrKindOverflow:
		if *overflowRecovered {
			l.log.Error(fmt.Sprintf("Digitizer %d: buffer overflow recurred after recovery, giving up", id),
				"module", "loop")
			return false, devErr
		}
		l.log.Warn(fmt.Sprintf("Digitizer %d: buffer overflow, restarting acquisition", id), "module", "loop")
		if stopErr := l.session.device.Stop(); stopErr != nil {
			return false, &DeviceError{Kind: ErrKindFatal, Err: stopErr}
		}
		l.sleep(overflowRecoveryPause)
		if startErr := l.session.device.Start(); startErr != nil {
			l.log.Error(fmt.Sprintf("Digitizer %d: restart after overflow failed: %v", id, startErr),
				"module", "loop")
			return false, &DeviceError{Kind: ErrKindFatal, Err: startErr}
		}
		*overflowRecovered = true
		return true, nil

	default:
		l.log.Error(fmt.Sprintf("Digitizer %d: fatal device fault: %v", id, devErr.Err), "module", "loop")
		return false, devErr
	}
}
