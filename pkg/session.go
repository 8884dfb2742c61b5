package daq

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

const (
	connectAttempts   = 3
	connectRetryDelay = 2 * time.Second
)

// DeviceSession ties one digitizer to its configuration file and its record
// writer and tracks the acquisition state machine. All methods are called
// from the orchestrator or from the session's own acquisition loop, never
// from both at once.
type DeviceSession struct {
	identity   DeviceIdentity
	device     Device
	configFile string

	cfg    *DeviceConfig
	writer *RecordWriter
	state  AcquisitionState
	log    *slog.Logger

	// retryDelay is swapped out in tests to keep retries fast.
	retryDelay time.Duration
}

func NewDeviceSession(identity DeviceIdentity, device Device, configFile string, logger *slog.Logger) *DeviceSession {
	return &DeviceSession{
		identity:   identity,
		device:     device,
		configFile: configFile,
		state:      StateDisconnected,
		log:        logger,
		retryDelay: connectRetryDelay,
	}
}

func (s *DeviceSession) ID() int                 { return s.identity.DeviceID }
func (s *DeviceSession) State() AcquisitionState { return s.state }
func (s *DeviceSession) Writer() *RecordWriter   { return s.writer }

// Connect opens the device, retrying transient failures. Connection faults
// are retryable by definition: the usual cause is a digitizer still
// enumerating on the link after power-up.
func (s *DeviceSession) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		err := s.device.Connect(ctx)
		if err == nil {
			s.state = StateConnected
			info := s.device.Info()
			s.log.Info(fmt.Sprintf("Connected to %s serial %s on link %d",
				info.ModelName, info.SerialNumber, s.identity.LinkNumber),
				"module", "session", "digitizer", s.identity.DeviceID)
			return nil
		}
		lastErr = err
		s.log.Warn(fmt.Sprintf("Connection attempt %d/%d failed on link %d: %v",
			attempt, connectAttempts, s.identity.LinkNumber, err),
			"module", "session", "digitizer", s.identity.DeviceID)
		if attempt < connectAttempts {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				s.state = StateFailed
				return &ConnectionError{LinkNumber: s.identity.LinkNumber, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}
	s.state = StateFailed
	return &ConnectionError{LinkNumber: s.identity.LinkNumber, Attempts: connectAttempts, Err: lastErr}
}

// Configure parses the session's device configuration file and programs the
// device with it. A configuration fault marks the session failed: running
// with half-applied settings would produce garbage data silently.
func (s *DeviceSession) Configure() error {
	cfg, err := ParseDeviceConfig(s.configFile, s.log)
	if err != nil {
		s.state = StateFailed
		return &ConfigurationError{DeviceID: s.identity.DeviceID, ConfigFile: s.configFile, Err: err}
	}
	if err := s.device.ApplyConfiguration(cfg); err != nil {
		s.state = StateFailed
		return &ConfigurationError{DeviceID: s.identity.DeviceID, ConfigFile: s.configFile, Err: err}
	}
	s.cfg = cfg
	s.state = StateConfigured
	s.log.Info(fmt.Sprintf("Digitizer %d configured from %s", s.identity.DeviceID, filepath.Base(s.configFile)),
		"module", "session")
	return nil
}

// Reload re-parses the configuration file and reprograms the device. Only
// legal while stopped.
func (s *DeviceSession) Reload() error {
	if s.state == StateRunning {
		return fmt.Errorf("cannot reload digitizer %d while running", s.identity.DeviceID)
	}
	return s.Configure()
}

// Start opens the record writer and starts the device. Starting an already
// running session is a no-op.
func (s *DeviceSession) Start() error {
	if s.state == StateRunning {
		return nil
	}

	if s.writer == nil || s.writer.closed {
		w, err := NewRecordWriter(s.identity.OutputDir, s.identity.DeviceID, s.log)
		if err != nil {
			return &PersistenceError{ChannelID: -1, Err: err}
		}
		s.writer = w
	}

	if err := s.device.Start(); err != nil {
		return &DeviceError{Kind: ErrKindFatal, Err: err}
	}
	s.state = StateRunning
	s.log.Info(fmt.Sprintf("Digitizer %d acquisition started", s.identity.DeviceID), "module", "session")
	return nil
}

// Stop halts the device. Stopping an already stopped session is a no-op.
// The record writer stays open so a later restart appends to the same run.
func (s *DeviceSession) Stop() error {
	if s.state != StateRunning {
		return nil
	}
	err := s.device.Stop()
	s.state = StateStopped
	if err != nil {
		return &DeviceError{Kind: ErrKindFatal, Err: err}
	}
	s.log.Info(fmt.Sprintf("Digitizer %d acquisition stopped", s.identity.DeviceID), "module", "session")
	return nil
}

// Disconnect tears the session down best-effort: stop acquisition, close
// the data files, close the device. Every step runs even when an earlier
// one fails; the first error is returned.
func (s *DeviceSession) Disconnect() error {
	var firstErr error
	if err := s.Stop(); err != nil {
		firstErr = err
		s.log.Warn(fmt.Sprintf("Error stopping digitizer %d: %v", s.identity.DeviceID, err), "module", "session")
	}
	if s.writer != nil {
		if err := s.writer.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.device.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.state = StateDisconnected
	s.log.Info(fmt.Sprintf("Digitizer %d disconnected", s.identity.DeviceID), "module", "session")
	return firstErr
}
