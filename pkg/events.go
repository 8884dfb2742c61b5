package daq

// ChannelWaveform holds the decoded samples of one channel for one trigger.
// Samples are already corrected and expressed in Volts.
type ChannelWaveform struct {
	Group          int
	ChannelInGroup int
	Samples        []float32
	TriggerTimeTag uint32
}

// Record is one complete decoded acquisition event from a digitizer.
// It is owned by the acquisition loop that decoded it and must not be
// mutated after creation.
type Record struct {
	EventNumber uint64
	Channels    []ChannelWaveform
}

// GlobalChannelID maps a (group, channel-within-group) pair to the global
// channel id used for file naming and frame headers.
func GlobalChannelID(group, channelInGroup, channelsPerGroup int) int {
	return group*channelsPerGroup + channelInGroup
}

// AcquisitionState tracks where a device session is in its lifecycle.
type AcquisitionState int

const (
	StateDisconnected AcquisitionState = iota
	StateConnected
	StateConfigured
	StateRunning
	StateStopped
	StateFailed
)

func (s AcquisitionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeviceIdentity is fixed at orchestrator initialization and never mutated.
type DeviceIdentity struct {
	DeviceID   int
	LinkNumber int
	ConetNode  int
	OutputDir  string
}
