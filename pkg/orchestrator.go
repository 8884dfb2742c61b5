package daq

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// stopJoinTimeout bounds how long Stop waits for the acquisition loops to
// come home before logging the laggards and moving on.
const stopJoinTimeout = 5 * time.Second

// Orchestrator owns the full multi-digitizer run: it builds one session per
// enabled digitizer, fans each out onto its own acquisition loop, and
// mediates start, stop, reload and shutdown through the shared signals.
type Orchestrator struct {
	config   Configuration
	factory  DeviceFactory
	sessions []*DeviceSession
	signals  *Signals
	stats    *StatisticsRegistry
	display  DisplaySink
	rundb    *RunDB
	log      *slog.Logger

	runID uuid.UUID

	mu        sync.Mutex
	running   bool
	group     *errgroup.Group
	groupDone chan struct{}
	cancel    context.CancelFunc
	loopErr   error

	joinTimeout  time.Duration
	connectDelay time.Duration
}

func NewOrchestrator(config Configuration, factory DeviceFactory, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		config:       config,
		factory:      factory,
		signals:      NewSignals(),
		display:      NopDisplay{},
		log:          logger,
		joinTimeout:  stopJoinTimeout,
		connectDelay: connectRetryDelay,
	}
	return o
}

// SetDisplay installs the monitor sink. Must be called before Start.
func (o *Orchestrator) SetDisplay(sink DisplaySink) { o.display = sink }

// SetRunDB installs the optional run bookkeeping backend.
func (o *Orchestrator) SetRunDB(db *RunDB) { o.rundb = db }

func (o *Orchestrator) Signals() *Signals               { return o.signals }
func (o *Orchestrator) Statistics() *StatisticsRegistry { return o.stats }
func (o *Orchestrator) Sessions() []*DeviceSession      { return o.sessions }

// Initialize connects and configures every enabled digitizer. A digitizer
// that fails to connect or configure is excluded from the run and logged;
// the run proceeds with the survivors. Only zero survivors is an error.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	enabled := o.config.EnabledDigitizers()
	o.log.Info(fmt.Sprintf("Initializing %d digitizer(s)", len(enabled)), "module", "daq")

	for i, digi := range enabled {
		identity := DeviceIdentity{
			DeviceID:   i,
			LinkNumber: digi.LinkNumber,
			ConetNode:  digi.ConetNode,
			OutputDir:  filepath.Join(o.config.DAQ.OutputDirectory, fmt.Sprintf("digitizer_%d", i)),
		}
		session := NewDeviceSession(identity, o.factory(identity), digi.ConfigFile, o.log)
		session.retryDelay = o.connectDelay

		if err := session.Connect(ctx); err != nil {
			o.log.Error(fmt.Sprintf("Digitizer %d excluded from run: %v", i, err), "module", "daq")
			continue
		}
		if err := session.Configure(); err != nil {
			o.log.Error(fmt.Sprintf("Digitizer %d excluded from run: %v", i, err), "module", "daq")
			session.Disconnect()
			continue
		}
		o.sessions = append(o.sessions, session)
	}

	if len(o.sessions) == 0 {
		return fmt.Errorf("no digitizer could be initialized")
	}

	o.stats = NewStatisticsRegistry(len(o.sessions),
		time.Duration(o.config.DAQ.RateWindowSeconds*float64(time.Second)), o.log)
	o.log.Info(fmt.Sprintf("%d of %d digitizer(s) ready", len(o.sessions), len(enabled)), "module", "daq")
	return nil
}

// Start begins acquisition on every session, each on its own goroutine.
// Starting while already running is a warning, not an error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		o.log.Warn("Start requested but acquisition is already running", "module", "daq")
		return nil
	}

	o.runID = uuid.New()
	o.stats.Reset()
	o.signals.ClearStop()
	o.signals.SetStart()
	o.loopErr = nil

	for _, s := range o.sessions {
		if err := s.Start(); err != nil {
			o.signals.ClearStart()
			return fmt.Errorf("error starting digitizer %d: %w", s.ID(), err)
		}
	}

	if o.rundb != nil {
		if err := o.rundb.OpenRun(o.runID, len(o.sessions), o.config.DAQ.OutputDirectory); err != nil {
			o.log.Warn(fmt.Sprintf("Error recording run start: %v", err), "module", "daq")
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.group, _ = errgroup.WithContext(loopCtx)
	o.groupDone = make(chan struct{})

	for _, s := range o.sessions {
		loop := NewAcquisitionLoop(s, o.signals, o.stats, o.display, o.log)
		o.group.Go(func() error {
			return loop.Run(loopCtx)
		})
	}
	go func() {
		err := o.group.Wait()
		o.mu.Lock()
		o.loopErr = err
		o.mu.Unlock()
		close(o.groupDone)
	}()

	o.running = true
	o.log.Info(fmt.Sprintf("Acquisition started: run %s, %d digitizer(s)", o.runID, len(o.sessions)),
		"module", "daq")
	return nil
}

// Stop raises the stop signal and waits a bounded time for the loops to
// come home, then stops every device. Stopping while not running is a
// warning, not an error.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		o.log.Warn("Stop requested but acquisition is not running", "module", "daq")
		return nil
	}
	done := o.groupDone
	o.mu.Unlock()

	o.signals.SetStop()

	select {
	case <-done:
	case <-time.After(o.joinTimeout):
		o.log.Warn(fmt.Sprintf("Acquisition loops did not stop within %s, proceeding with shutdown",
			o.joinTimeout), "module", "daq")
	}

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	loopErr := o.loopErr
	o.running = false
	o.signals.ClearStart()
	o.mu.Unlock()

	for _, s := range o.sessions {
		if err := s.Stop(); err != nil {
			o.log.Warn(fmt.Sprintf("Error stopping digitizer %d: %v", s.ID(), err), "module", "daq")
		}
	}

	o.stats.Report(true)

	if o.rundb != nil {
		if err := o.rundb.CloseRun(o.runID, o.stats.TotalEvents()); err != nil {
			o.log.Warn(fmt.Sprintf("Error recording run end: %v", err), "module", "daq")
		}
	}

	if loopErr != nil && loopErr != context.Canceled {
		o.log.Warn(fmt.Sprintf("Acquisition ended with error: %v", loopErr), "module", "daq")
	}
	o.log.Info("Acquisition stopped", "module", "daq")
	return nil
}

// Toggle starts acquisition when stopped and stops it when running.
func (o *Orchestrator) Toggle(ctx context.Context) error {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if running {
		return o.Stop()
	}
	return o.Start(ctx)
}

// Running reports whether acquisition is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Reload stops acquisition if needed, re-reads every session's device
// configuration, and restarts if the run was in progress. Sessions whose
// new configuration fails to apply are left stopped and logged.
func (o *Orchestrator) Reload(ctx context.Context) error {
	wasRunning := o.Running()
	if wasRunning {
		if err := o.Stop(); err != nil {
			return err
		}
	}

	o.log.Info("Reloading device configurations", "module", "daq")
	for _, s := range o.sessions {
		if err := s.Reload(); err != nil {
			o.log.Error(fmt.Sprintf("Error reloading digitizer %d: %v", s.ID(), err), "module", "daq")
			return err
		}
	}

	if wasRunning {
		return o.Start(ctx)
	}
	return nil
}

// Run drives the whole acquisition until the quit signal, the context, or a
// configured run limit ends it. Statistics are reported on a fixed cadence
// while acquiring.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if o.config.DAQ.RunDurationSeconds > 0 {
		t := time.NewTimer(time.Duration(o.config.DAQ.RunDurationSeconds) * time.Second)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		// A nil channel blocks forever, so a toggled-off run just waits for
		// the next signal instead of spinning on the closed done channel.
		o.mu.Lock()
		var done chan struct{}
		if o.running {
			done = o.groupDone
		}
		o.mu.Unlock()

		select {
		case <-o.signals.Quit():
			o.log.Info("Quit requested, stopping run", "module", "daq")
			return o.Shutdown()

		case <-ctx.Done():
			o.log.Info("Context cancelled, stopping run", "module", "daq")
			return o.Shutdown()

		case <-deadline:
			o.log.Info(fmt.Sprintf("Run duration of %ds reached", o.config.DAQ.RunDurationSeconds),
				"module", "daq")
			return o.Shutdown()

		case <-done:
			o.mu.Lock()
			err := o.loopErr
			o.mu.Unlock()
			if err == nil || err == context.Canceled {
				// The loops were stopped deliberately; stay alive for the
				// next start request.
				continue
			}
			o.log.Error(fmt.Sprintf("All acquisition loops exited: %v", err), "module", "daq")
			return o.Shutdown()

		case <-ticker.C:
			if o.Running() {
				o.stats.Report(false)
				if max := o.config.DAQ.MaxEvents; max > 0 && o.stats.TotalEvents() >= max {
					o.log.Info(fmt.Sprintf("Event limit of %d reached", max), "module", "daq")
					return o.Shutdown()
				}
			}
		}
	}
}

// Shutdown stops acquisition and disconnects every session. Safe to call
// whether or not acquisition is running.
func (o *Orchestrator) Shutdown() error {
	if o.Running() {
		if err := o.Stop(); err != nil {
			o.log.Warn(fmt.Sprintf("Error during stop: %v", err), "module", "daq")
		}
	}
	var firstErr error
	for _, s := range o.sessions {
		if err := s.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.log.Info("Shutdown complete", "module", "daq")
	return firstErr
}
