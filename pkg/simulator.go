package daq

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulatedDevice produces synthetic triggers with sine-plus-noise
// waveforms. It stands in for a digitizer when no hardware is attached and
// drives the acquisition tests.
type SimulatedDevice struct {
	identity DeviceIdentity

	mu        sync.Mutex
	connected bool
	running   bool
	cfg       *DeviceConfig
	nextEvent uint64

	// TriggerInterval is the spacing between synthetic triggers. Zero means
	// a record is available on every poll.
	TriggerInterval time.Duration
	lastTrigger     time.Time

	// ConnectFailures makes the first N Connect calls fail, to exercise the
	// session retry path.
	ConnectFailures int

	// Faults are consumed one per poll before any records are produced.
	faults []error

	rng *rand.Rand
}

func NewSimulatedDevice(identity DeviceIdentity) *SimulatedDevice {
	return &SimulatedDevice{
		identity: identity,
		rng:      rand.New(rand.NewSource(int64(identity.DeviceID) + 1)),
	}
}

// SimulatedFactory is a DeviceFactory producing simulated digitizers.
func SimulatedFactory(identity DeviceIdentity) Device {
	return NewSimulatedDevice(identity)
}

// InjectFault queues an error to be returned by an upcoming Poll call.
func (d *SimulatedDevice) InjectFault(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = append(d.faults, err)
}

func (d *SimulatedDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConnectFailures > 0 {
		d.ConnectFailures--
		return fmt.Errorf("simulated enumeration failure on link %d", d.identity.LinkNumber)
	}
	d.connected = true
	return nil
}

func (d *SimulatedDevice) ApplyConfiguration(cfg *DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("device not connected")
	}
	d.cfg = cfg
	return nil
}

func (d *SimulatedDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("device not connected")
	}
	d.running = true
	d.lastTrigger = time.Now()
	return nil
}

func (d *SimulatedDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *SimulatedDevice) Poll(ctx context.Context) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.running {
		return nil, &DeviceError{Kind: ErrKindFatal, Err: fmt.Errorf("poll on stopped device")}
	}

	if len(d.faults) > 0 {
		err := d.faults[0]
		d.faults = d.faults[1:]
		return nil, err
	}

	if d.TriggerInterval > 0 && time.Since(d.lastTrigger) < d.TriggerInterval {
		return nil, nil
	}
	d.lastTrigger = time.Now()

	rec := d.synthesizeRecord()
	return []Record{rec}, nil
}

func (d *SimulatedDevice) synthesizeRecord() Record {
	groups, perGroup, length := 4, 9, 1024
	if d.cfg != nil {
		groups = d.cfg.Groups()
		perGroup = d.cfg.ChannelsPerGroup
		length = d.cfg.RecordLength
	}

	rec := Record{EventNumber: d.nextEvent}
	d.nextEvent++

	tag := uint32(time.Now().UnixNano() / 1000)
	for g := 0; g < groups; g++ {
		if d.cfg != nil && !d.cfg.GroupEnabled(g) {
			continue
		}
		for ch := 0; ch < perGroup; ch++ {
			samples := make([]float32, length)
			phase := d.rng.Float64() * 2 * math.Pi
			for i := range samples {
				samples[i] = float32(math.Sin(2*math.Pi*float64(i)/float64(length)+phase)) +
					float32(d.rng.NormFloat64())*0.05
			}
			rec.Channels = append(rec.Channels, ChannelWaveform{
				Group:          g,
				ChannelInGroup: ch,
				Samples:        samples,
				TriggerTimeTag: tag,
			})
		}
	}
	return rec
}

func (d *SimulatedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.running = false
	return nil
}

func (d *SimulatedDevice) Info() DeviceInfo {
	return DeviceInfo{
		ModelName:    "SIM5742",
		SerialNumber: fmt.Sprintf("sim-%d", d.identity.DeviceID),
		Channels:     36,
		Groups:       4,
	}
}
