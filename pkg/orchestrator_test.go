package daq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallDeviceConfig = `[COMMON]
OPEN USB 0 0
RECORD_LENGTH 32

[0]
ENABLE_INPUT YES
[1]
ENABLE_INPUT NO
[2]
ENABLE_INPUT NO
[3]
ENABLE_INPUT NO
`

func newTestOrchestrator(t *testing.T, nDigitizers int, factory DeviceFactory) *Orchestrator {
	t.Helper()
	cfgPath := writeTempFile(t, "dev.txt", smallDeviceConfig)

	config := defaultConfiguration()
	config.DAQ.OutputDirectory = t.TempDir()
	config.DAQ.Digitizers = nil
	for i := 0; i < nDigitizers; i++ {
		config.DAQ.Digitizers = append(config.DAQ.Digitizers, DigitizerConfig{
			LinkNumber: i,
			ConfigFile: cfgPath,
			Enabled:    true,
		})
	}

	orch := NewOrchestrator(config, factory, testLogger())
	orch.connectDelay = time.Millisecond
	return orch
}

func TestOrchestratorRunsAllDigitizers(t *testing.T) {
	orch := newTestOrchestrator(t, 2, SimulatedFactory)
	ctx := context.Background()

	require.NoError(t, orch.Initialize(ctx))
	require.Len(t, orch.Sessions(), 2)

	require.NoError(t, orch.Start(ctx))
	assert.True(t, orch.Running())
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, orch.Stop())
	assert.False(t, orch.Running())

	snaps := orch.Statistics().Snapshot()
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		assert.Greater(t, snap.Count, uint64(0), fmt.Sprintf("digitizer %d produced no events", snap.DeviceID))
	}

	// The statistics agree exactly with what was persisted: one frame per
	// event on every channel file.
	for i, s := range orch.Sessions() {
		assert.Equal(t, snaps[i].Count, s.Writer().Statistics()[0].Events)
	}

	require.NoError(t, orch.Shutdown())

	// Each digitizer wrote its own channel files under its own directory.
	for i := 0; i < 2; i++ {
		path := filepath.Join(orch.config.DAQ.OutputDirectory, fmt.Sprintf("digitizer_%d", i), "wave_0.dat")
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestOrchestratorExcludesFailedDigitizers(t *testing.T) {
	factory := func(identity DeviceIdentity) Device {
		dev := NewSimulatedDevice(identity)
		if identity.DeviceID == 1 {
			dev.ConnectFailures = 10
		}
		return dev
	}

	orch := newTestOrchestrator(t, 3, factory)
	require.NoError(t, orch.Initialize(context.Background()))
	assert.Len(t, orch.Sessions(), 2, "the unreachable digitizer is excluded")
}

func TestOrchestratorInitializeFailsWithNoSurvivors(t *testing.T) {
	factory := func(identity DeviceIdentity) Device {
		dev := NewSimulatedDevice(identity)
		dev.ConnectFailures = 10
		return dev
	}

	orch := newTestOrchestrator(t, 2, factory)
	assert.Error(t, orch.Initialize(context.Background()))
}

func TestOrchestratorStopWithoutStartIsHarmless(t *testing.T) {
	orch := newTestOrchestrator(t, 1, SimulatedFactory)
	require.NoError(t, orch.Initialize(context.Background()))

	require.NoError(t, orch.Stop())
	require.NoError(t, orch.Start(context.Background()))
	require.NoError(t, orch.Stop())
	require.NoError(t, orch.Stop(), "double stop is a warning, not an error")
	require.NoError(t, orch.Shutdown())
}

func TestOrchestratorRestartAfterStop(t *testing.T) {
	orch := newTestOrchestrator(t, 1, SimulatedFactory)
	ctx := context.Background()
	require.NoError(t, orch.Initialize(ctx))

	require.NoError(t, orch.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, orch.Stop())
	firstRun := orch.Statistics().TotalEvents()
	assert.Greater(t, firstRun, uint64(0))

	// Statistics restart from zero on the second run.
	require.NoError(t, orch.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, orch.Stop())
	assert.Greater(t, orch.Statistics().TotalEvents(), uint64(0))

	require.NoError(t, orch.Shutdown())
}

func TestOrchestratorReloadWhileStopped(t *testing.T) {
	orch := newTestOrchestrator(t, 1, SimulatedFactory)
	ctx := context.Background()
	require.NoError(t, orch.Initialize(ctx))

	require.NoError(t, orch.Reload(ctx))
	assert.False(t, orch.Running(), "reload while stopped stays stopped")
	require.NoError(t, orch.Shutdown())
}

func TestOrchestratorRunEndsOnQuit(t *testing.T) {
	orch := newTestOrchestrator(t, 1, SimulatedFactory)
	ctx := context.Background()
	require.NoError(t, orch.Initialize(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- orch.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	orch.Signals().RequestQuit()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not end on quit")
	}
	assert.False(t, orch.Running())
}
