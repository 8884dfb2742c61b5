package daq

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// RegisterWrite is a raw low-level override applied after the structured
// settings.
type RegisterWrite struct {
	Address uint32
	Data    uint32
	Mask    uint32
}

// GroupConfig holds the per-group settings of one DRS4 chip.
type GroupConfig struct {
	Enabled       bool
	PulsePolarity string
	DCOffset      float64
}

// DeviceConfig is the structured configuration of one digitizer, parsed
// from the WaveDump-style text file named in the top-level configuration.
// The acquisition core treats it as opaque; the device boundary maps it to
// vendor calls.
type DeviceConfig struct {
	ConnectionType string
	LinkNumber     int
	ConetNode      int
	VMEBaseAddress uint32

	SamplingFrequency int // 0=5GHz, 1=2.5GHz, 2=1GHz, 3=750MHz
	RecordLength      int
	PostTrigger       int // percent

	ExternalTrigger string // DISABLED, ACQUISITION_ONLY, ACQUISITION_AND_TRGOUT
	FastTrigger     string
	SWTrigger       string

	MaxEventsPerTransfer   int
	AcquisitionMode        string
	CorrectionLevel        string
	SkipStartupCalibration bool

	Group            map[int]GroupConfig
	ChannelsPerGroup int

	TR0PulsePolarity string
	TR0DCOffset      int
	TR0Threshold     int
	TR0Enabled       bool

	FPIOLevel   string // NIM or TTL
	TestPattern bool

	RegisterWrites []RegisterWrite
}

// GroupEnabled reports whether a group takes part in the acquisition. A
// group with no section in the file is enabled, matching WaveDump behavior
// of minimal config files.
func (c *DeviceConfig) GroupEnabled(group int) bool {
	g, ok := c.Group[group]
	if !ok {
		return true
	}
	return g.Enabled
}

// Groups returns the number of configured groups (the DT5742 has 4).
func (c *DeviceConfig) Groups() int {
	max := -1
	for id := range c.Group {
		if id > max {
			max = id
		}
	}
	if max < 0 {
		return 4
	}
	return max + 1
}

func defaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		ConnectionType:       "USB",
		SamplingFrequency:    0,
		RecordLength:         1024,
		PostTrigger:          50,
		ExternalTrigger:      "DISABLED",
		FastTrigger:          "DISABLED",
		SWTrigger:            "DISABLED",
		MaxEventsPerTransfer: 1,
		AcquisitionMode:      "SW_CONTROLLED",
		CorrectionLevel:      "AUTO",
		Group:                make(map[int]GroupConfig),
		ChannelsPerGroup:     9, // 8 data channels + 1 fast trigger
		TR0PulsePolarity:     "POSITIVE",
		TR0DCOffset:          32768,
		TR0Threshold:         20000,
		FPIOLevel:            "NIM",
	}
}

// ParseDeviceConfig reads a WaveDump-style text configuration: section
// headers [COMMON], [0]..[3], [TR0]; one whitespace-separated key/value
// setting per line; '#' comments.
func ParseDeviceConfig(path string, logger *slog.Logger) (*DeviceConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening device config %q: %w", path, err)
	}
	defer f.Close()

	cfg := defaultDeviceConfig()
	section := "COMMON"

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		key := parts[0]
		value := ""
		if len(parts) > 1 {
			value = strings.TrimSpace(parts[1])
		}

		if err := cfg.applySetting(section, key, value); err != nil {
			logger.Warn(fmt.Sprintf("Error parsing line %d in section [%s]: %s: %v",
				lineNum, section, line, err), "module", "devconfig")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading device config %q: %w", path, err)
	}

	if err := cfg.validate(logger); err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("Device configuration parsed: %s", path), "module", "devconfig")
	return cfg, nil
}

func (c *DeviceConfig) applySetting(section, key, value string) error {
	switch {
	case section == "COMMON":
		return c.applyCommon(key, value)
	case section == "TR0":
		return c.applyTR0(key, value)
	default:
		group, err := strconv.Atoi(section)
		if err != nil {
			// Unknown sections are ignored, same as unknown keys.
			return nil
		}
		return c.applyGroup(group, key, value)
	}
}

func (c *DeviceConfig) applyCommon(key, value string) error {
	switch key {
	case "OPEN":
		// OPEN USB <link> <conet_node> [vme_base_address]
		fields := strings.Fields(value)
		if len(fields) < 3 {
			return fmt.Errorf("OPEN needs at least 3 fields")
		}
		c.ConnectionType = fields[0]
		link, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		node, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		c.LinkNumber = link
		c.ConetNode = node
		if len(fields) >= 4 {
			addr, err := strconv.ParseUint(strings.TrimPrefix(fields[3], "0x"), 16, 32)
			if err != nil {
				return err
			}
			c.VMEBaseAddress = uint32(addr)
		}
	case "DRS4_FREQUENCY":
		return parseInt(value, &c.SamplingFrequency)
	case "RECORD_LENGTH":
		return parseInt(value, &c.RecordLength)
	case "POST_TRIGGER":
		return parseInt(value, &c.PostTrigger)
	case "EXTERNAL_TRIGGER":
		c.ExternalTrigger = value
	case "FAST_TRIGGER":
		c.FastTrigger = value
	case "SW_TRIGGER":
		c.SWTrigger = value
	case "MAX_NUM_EVENTS_BLT":
		return parseInt(value, &c.MaxEventsPerTransfer)
	case "ACQUISITION_MODE":
		c.AcquisitionMode = value
	case "CORRECTION_LEVEL":
		c.CorrectionLevel = value
	case "SKIP_STARTUP_CALIBRATION":
		c.SkipStartupCalibration = yes(value)
	case "FPIO_LEVEL":
		c.FPIOLevel = value
	case "TEST_PATTERN":
		c.TestPattern = yes(value)
	case "WRITE_REGISTER":
		// WRITE_REGISTER <address> <data> [<mask>]
		fields := strings.Fields(value)
		if len(fields) < 2 {
			return fmt.Errorf("WRITE_REGISTER needs address and data")
		}
		var reg RegisterWrite
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 32)
		if err != nil {
			return err
		}
		data, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
		if err != nil {
			return err
		}
		reg.Address = uint32(addr)
		reg.Data = uint32(data)
		reg.Mask = 0xFFFFFFFF
		if len(fields) >= 3 {
			mask, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 32)
			if err != nil {
				return err
			}
			reg.Mask = uint32(mask)
		}
		c.RegisterWrites = append(c.RegisterWrites, reg)
	}
	return nil
}

func (c *DeviceConfig) applyGroup(group int, key, value string) error {
	g := c.Group[group]
	switch key {
	case "ENABLE_INPUT":
		g.Enabled = yes(value)
	case "PULSE_POLARITY":
		g.PulsePolarity = value
	case "DC_OFFSET":
		offset, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		g.DCOffset = offset
	}
	c.Group[group] = g
	return nil
}

func (c *DeviceConfig) applyTR0(key, value string) error {
	switch key {
	case "PULSE_POLARITY":
		c.TR0PulsePolarity = value
	case "DC_OFFSET":
		return parseInt(value, &c.TR0DCOffset)
	case "TRIGGER_THRESHOLD":
		return parseInt(value, &c.TR0Threshold)
	case "ENABLED_FAST_TRIGGER_DIGITIZING":
		c.TR0Enabled = yes(value)
	}
	return nil
}

func (c *DeviceConfig) validate(logger *slog.Logger) error {
	if c.SamplingFrequency < 0 || c.SamplingFrequency > 3 {
		return fmt.Errorf("invalid DRS4_FREQUENCY %d: valid values 0 (5GHz), 1 (2.5GHz), 2 (1GHz), 3 (750MHz)",
			c.SamplingFrequency)
	}
	if c.RecordLength <= 0 {
		return fmt.Errorf("invalid RECORD_LENGTH %d", c.RecordLength)
	}
	if c.PostTrigger < 0 || c.PostTrigger > 100 {
		return fmt.Errorf("invalid POST_TRIGGER %d: must be a percentage", c.PostTrigger)
	}
	switch c.ExternalTrigger {
	case "DISABLED", "ACQUISITION_ONLY", "ACQUISITION_AND_TRGOUT":
	default:
		logger.Warn(fmt.Sprintf("Unexpected EXTERNAL_TRIGGER value: %s", c.ExternalTrigger),
			"module", "devconfig")
	}
	if c.FPIOLevel != "NIM" && c.FPIOLevel != "TTL" {
		logger.Warn(fmt.Sprintf("Unexpected FPIO_LEVEL value: %s", c.FPIOLevel), "module", "devconfig")
	}
	return nil
}

func parseInt(value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func yes(value string) bool {
	return strings.EqualFold(value, "YES")
}
