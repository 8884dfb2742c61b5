package daq

import "context"

// Device is the boundary to one hardware digitizer. Implementations map the
// structured DeviceConfig onto vendor calls; the acquisition core never
// touches registers or vendor enums directly.
//
// Poll returns the records decoded since the previous poll, in trigger
// order. A nil slice with a nil error is the normal idle result while
// waiting for an external trigger. Faults are reported as *DeviceError with
// a structured Kind; the core never classifies errors by message text.
type Device interface {
	Connect(ctx context.Context) error
	ApplyConfiguration(cfg *DeviceConfig) error
	Start() error
	Stop() error
	Poll(ctx context.Context) ([]Record, error)
	Close() error

	// Info describes the connected hardware for logging.
	Info() DeviceInfo
}

// DeviceInfo describes a connected digitizer.
type DeviceInfo struct {
	ModelName    string
	SerialNumber string
	Channels     int
	Groups       int
}

// DeviceFactory opens the device behind a transport address. The
// orchestrator uses it so runs against real hardware and simulated runs
// differ only in the factory they are wired with.
type DeviceFactory func(identity DeviceIdentity) Device
