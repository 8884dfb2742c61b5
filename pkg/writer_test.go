package daq

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRecordWriter(dir, 3, testLogger())
	require.NoError(t, err)

	samples := []float32{0.1, 0.2, 0.3, 0.4}
	for evt := uint64(0); evt < 5; evt++ {
		require.NoError(t, w.Write(7, evt, samples))
	}
	require.NoError(t, w.CloseAll())

	f, err := os.Open(filepath.Join(dir, "wave_7.dat"))
	require.NoError(t, err)
	defer f.Close()

	for evt := uint64(0); evt < 5; evt++ {
		header, decoded, err := ReadFrame(f)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), header.DeviceID)
		assert.Equal(t, uint64(7), header.ChannelID)
		assert.Equal(t, evt, header.EventNumber)
		assert.Equal(t, samples, decoded)
	}
	_, _, err = ReadFrame(f)
	assert.Equal(t, io.EOF, err)
}

func TestRecordWriterOneFilePerChannel(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)

	require.NoError(t, w.Write(0, 0, []float32{1}))
	require.NoError(t, w.Write(9, 0, []float32{1}))
	require.NoError(t, w.CloseAll())

	for _, name := range []string{"wave_0.dat", "wave_9.dat"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRecordWriterStatistics(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)

	samples := []float32{1, 2}
	require.NoError(t, w.Write(4, 0, samples))
	require.NoError(t, w.Write(4, 1, samples))

	stats := w.Statistics()
	require.Contains(t, stats, 4)
	assert.Equal(t, uint64(2), stats[4].Events)
	assert.Equal(t, uint64(2*(FrameHeaderSize+SampleSize*len(samples))), stats[4].Bytes)

	require.NoError(t, w.CloseAll())
}

func TestRecordWriterWriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.CloseAll())

	err = w.Write(0, 0, []float32{1})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestRecordWriterCloseAllIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.Write(0, 0, []float32{1}))

	require.NoError(t, w.CloseAll())
	require.NoError(t, w.CloseAll())
}

func TestRecordWriterAppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()

	w1, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)
	require.NoError(t, w1.Write(0, 0, []float32{1}))
	require.NoError(t, w1.CloseAll())

	w2, err := NewRecordWriter(dir, 0, testLogger())
	require.NoError(t, err)
	require.NoError(t, w2.Write(0, 1, []float32{2}))
	require.NoError(t, w2.CloseAll())

	f, err := os.Open(filepath.Join(dir, "wave_0.dat"))
	require.NoError(t, err)
	defer f.Close()

	header, _, err := ReadFrame(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), header.EventNumber)
	header, _, err = ReadFrame(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), header.EventNumber)
}
