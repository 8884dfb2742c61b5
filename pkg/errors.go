package daq

import "fmt"

// ConnectionError represents a failure to open the link to a digitizer
// after the bounded retry sequence was exhausted.
type ConnectionError struct {
	LinkNumber int
	Attempts   int
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error connecting to digitizer on link %d after %d attempts: %v",
		e.LinkNumber, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConfigurationError represents a failure to apply a device configuration.
// It is fatal for that device until it is reconfigured.
type ConfigurationError struct {
	DeviceID   int
	ConfigFile string
	Err        error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("error configuring digitizer %d from %q: %v",
		e.DeviceID, e.ConfigFile, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrorKind classifies a device-reported fault. The device collaborator
// must return a structured kind; the acquisition loop never inspects
// error strings.
type ErrorKind int

const (
	ErrKindTimeout ErrorKind = iota
	ErrKindOverflow
	ErrKindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTimeout:
		return "timeout"
	case ErrKindOverflow:
		return "overflow"
	case ErrKindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DeviceError is a fault reported by the device collaborator during polling.
type DeviceError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("digitizer error (%s): %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// PersistenceError represents a failed write to a channel file. It is fatal
// for the owning acquisition loop: continuing after a partial frame would
// corrupt the framing of everything that follows.
type PersistenceError struct {
	ChannelID int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("error writing channel %d: %v", e.ChannelID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
