package daq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDeviceConfig = `# DT5742 test settings
[COMMON]
OPEN USB 2 0
DRS4_FREQUENCY 2
RECORD_LENGTH 1024
POST_TRIGGER 60
EXTERNAL_TRIGGER ACQUISITION_ONLY
FPIO_LEVEL NIM
MAX_NUM_EVENTS_BLT 5
WRITE_REGISTER 0x8004 0x8 0xFFFF

[0]
ENABLE_INPUT YES
PULSE_POLARITY NEGATIVE
DC_OFFSET 0.2

[1]
ENABLE_INPUT NO

[TR0]
ENABLED_FAST_TRIGGER_DIGITIZING YES
DC_OFFSET 32768
TRIGGER_THRESHOLD 20500
`

func TestParseDeviceConfig(t *testing.T) {
	path := writeTempFile(t, "WaveDumpConfig.txt", sampleDeviceConfig)

	cfg, err := ParseDeviceConfig(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "USB", cfg.ConnectionType)
	assert.Equal(t, 2, cfg.LinkNumber)
	assert.Equal(t, 0, cfg.ConetNode)
	assert.Equal(t, 2, cfg.SamplingFrequency)
	assert.Equal(t, 1024, cfg.RecordLength)
	assert.Equal(t, 60, cfg.PostTrigger)
	assert.Equal(t, "ACQUISITION_ONLY", cfg.ExternalTrigger)
	assert.Equal(t, 5, cfg.MaxEventsPerTransfer)

	require.Len(t, cfg.RegisterWrites, 1)
	assert.Equal(t, uint32(0x8004), cfg.RegisterWrites[0].Address)
	assert.Equal(t, uint32(0x8), cfg.RegisterWrites[0].Data)
	assert.Equal(t, uint32(0xFFFF), cfg.RegisterWrites[0].Mask)

	assert.True(t, cfg.GroupEnabled(0))
	assert.Equal(t, "NEGATIVE", cfg.Group[0].PulsePolarity)
	assert.InDelta(t, 0.2, cfg.Group[0].DCOffset, 1e-9)
	assert.False(t, cfg.GroupEnabled(1))

	assert.True(t, cfg.TR0Enabled)
	assert.Equal(t, 32768, cfg.TR0DCOffset)
	assert.Equal(t, 20500, cfg.TR0Threshold)
}

func TestParseDeviceConfigDefaults(t *testing.T) {
	path := writeTempFile(t, "minimal.txt", "[COMMON]\nOPEN USB 0 0\n")

	cfg, err := ParseDeviceConfig(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.RecordLength)
	assert.Equal(t, 9, cfg.ChannelsPerGroup)
	assert.Equal(t, 4, cfg.Groups())
	// Groups with no section take part in the acquisition.
	assert.True(t, cfg.GroupEnabled(3))
}

func TestParseDeviceConfigRejectsBadFrequency(t *testing.T) {
	path := writeTempFile(t, "bad.txt", "[COMMON]\nDRS4_FREQUENCY 7\n")

	_, err := ParseDeviceConfig(path, testLogger())
	assert.Error(t, err)
}

func TestParseDeviceConfigMissingFile(t *testing.T) {
	_, err := ParseDeviceConfig("/nonexistent/wavedump.txt", testLogger())
	assert.Error(t, err)
}

func TestParseDeviceConfigIgnoresMalformedLines(t *testing.T) {
	path := writeTempFile(t, "noisy.txt",
		"[COMMON]\nOPEN USB 0 0\nRECORD_LENGTH not_a_number\nUNKNOWN_KEY whatever\n")

	cfg, err := ParseDeviceConfig(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.RecordLength, "bad value keeps the default")
}
