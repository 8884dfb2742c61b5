package daq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, configFile string) (*DeviceSession, *SimulatedDevice) {
	t.Helper()
	identity := DeviceIdentity{DeviceID: 0, LinkNumber: 0, OutputDir: t.TempDir()}
	dev := NewSimulatedDevice(identity)
	s := NewDeviceSession(identity, dev, configFile, testLogger())
	s.retryDelay = time.Millisecond
	return s, dev
}

func TestSessionConnectRetriesTransientFailures(t *testing.T) {
	s, dev := newTestSession(t, "")
	dev.ConnectFailures = 2

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateConnected, s.State())
}

func TestSessionConnectGivesUpAfterRetries(t *testing.T) {
	s, dev := newTestSession(t, "")
	dev.ConnectFailures = 3

	err := s.Connect(context.Background())
	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 3, cerr.Attempts)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionConfigure(t *testing.T) {
	path := writeTempFile(t, "dev.txt", sampleDeviceConfig)
	s, _ := newTestSession(t, path)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Configure())
	assert.Equal(t, StateConfigured, s.State())
}

func TestSessionConfigureFailureMarksFailed(t *testing.T) {
	s, _ := newTestSession(t, "/nonexistent/dev.txt")
	require.NoError(t, s.Connect(context.Background()))

	err := s.Configure()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionStartStopIdempotent(t *testing.T) {
	path := writeTempFile(t, "dev.txt", sampleDeviceConfig)
	s, _ := newTestSession(t, path)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Configure())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "starting twice is a no-op")
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stopping twice is a no-op")
	assert.Equal(t, StateStopped, s.State())
}

func TestSessionReloadWhileRunningIsRejected(t *testing.T) {
	path := writeTempFile(t, "dev.txt", sampleDeviceConfig)
	s, _ := newTestSession(t, path)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Configure())
	require.NoError(t, s.Start())

	assert.Error(t, s.Reload())

	require.NoError(t, s.Stop())
	assert.NoError(t, s.Reload())
}

func TestSessionDisconnectIsBestEffort(t *testing.T) {
	path := writeTempFile(t, "dev.txt", sampleDeviceConfig)
	s, _ := newTestSession(t, path)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Configure())
	require.NoError(t, s.Start())
	require.NoError(t, s.Writer().Write(0, 0, []float32{1}))

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())

	// The writer was closed on the way down.
	err := s.Writer().Write(0, 1, []float32{2})
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
}
