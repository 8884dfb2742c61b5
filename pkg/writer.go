package daq

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/exp/maps"
)

// ErrWriterClosed is wrapped in the PersistenceError returned by writes
// after CloseAll.
var ErrWriterClosed = errors.New("writer already closed")

// flushEvery is the per-channel write cadence between explicit flushes.
// Flushing every write costs one syscall per event per channel; flushing
// never risks losing the whole run on a crash.
const flushEvery = 100

// ChannelStatistics reports the running counters of one channel file.
type ChannelStatistics struct {
	Events uint64
	Bytes  uint64
}

type channelFile struct {
	file   *os.File
	w      *bufio.Writer
	events uint64
	bytes  uint64
}

// RecordWriter persists waveforms for one digitizer, fanned out across one
// append-only binary file per global channel id. Files are opened lazily on
// the first record for that channel and closed exactly once by CloseAll.
// A RecordWriter is owned by a single acquisition loop and is not safe for
// concurrent use.
type RecordWriter struct {
	outputDir string
	deviceID  int
	channels  map[int]*channelFile
	closed    bool
	log       *slog.Logger

	buf bytes.Buffer
}

func NewRecordWriter(outputDir string, deviceID int, logger *slog.Logger) (*RecordWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory %q: %w", outputDir, err)
	}
	logger.Info(fmt.Sprintf("Record writer initialized: output_dir=%s digitizer=%d", outputDir, deviceID),
		"module", "writer")
	return &RecordWriter{
		outputDir: outputDir,
		deviceID:  deviceID,
		channels:  make(map[int]*channelFile),
		log:       logger,
	}, nil
}

// Write appends one framed record to the channel's file. A failure is fatal
// for the caller: a partially written frame corrupts the channel's framing
// for every subsequent read.
func (w *RecordWriter) Write(channelID int, eventNumber uint64, samples []float32) error {
	if w.closed {
		return &PersistenceError{ChannelID: channelID, Err: ErrWriterClosed}
	}

	cf, ok := w.channels[channelID]
	if !ok {
		var err error
		cf, err = w.openChannel(channelID)
		if err != nil {
			return &PersistenceError{ChannelID: channelID, Err: err}
		}
	}

	w.buf.Reset()
	if err := EncodeFrame(&w.buf, w.deviceID, channelID, eventNumber, samples); err != nil {
		return &PersistenceError{ChannelID: channelID, Err: err}
	}
	if _, err := cf.w.Write(w.buf.Bytes()); err != nil {
		return &PersistenceError{ChannelID: channelID, Err: err}
	}

	cf.events++
	cf.bytes += uint64(w.buf.Len())

	if cf.events%flushEvery == 0 {
		if err := cf.w.Flush(); err != nil {
			return &PersistenceError{ChannelID: channelID, Err: err}
		}
		if cf.events%(flushEvery*10) == 0 {
			w.log.Debug(fmt.Sprintf("Channel %d: %d events, %.2f MB",
				channelID, cf.events, float64(cf.bytes)/1024/1024), "module", "writer")
		}
	}
	return nil
}

func (w *RecordWriter) openChannel(channelID int) (*channelFile, error) {
	path := filepath.Join(w.outputDir, fmt.Sprintf("wave_%d.dat", channelID))

	// Appending to a leftover file from a previous run silently mixes two
	// runs in one file, so make it loud.
	if _, err := os.Stat(path); err == nil {
		w.log.Warn(fmt.Sprintf("File already exists, will append: %s", path), "module", "writer")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %w", path, err)
	}

	cf := &channelFile{file: f, w: bufio.NewWriter(f)}
	w.channels[channelID] = cf
	w.log.Info(fmt.Sprintf("Opened file: %s", path), "module", "writer")
	return cf, nil
}

// Statistics returns per-channel event and byte counters.
func (w *RecordWriter) Statistics() map[int]ChannelStatistics {
	stats := make(map[int]ChannelStatistics, len(w.channels))
	for id, cf := range w.channels {
		stats[id] = ChannelStatistics{Events: cf.events, Bytes: cf.bytes}
	}
	return stats
}

// FlushAll flushes every open channel file.
func (w *RecordWriter) FlushAll() error {
	for id, cf := range w.channels {
		if err := cf.w.Flush(); err != nil {
			return &PersistenceError{ChannelID: id, Err: err}
		}
	}
	return nil
}

// CloseAll flushes and closes every open channel file exactly once. Calling
// it again is a no-op; writing after it is an error.
func (w *RecordWriter) CloseAll() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ids := maps.Keys(w.channels)
	sort.Ints(ids)

	var firstErr error
	for _, id := range ids {
		cf := w.channels[id]
		if err := cf.w.Flush(); err != nil && firstErr == nil {
			firstErr = &PersistenceError{ChannelID: id, Err: err}
		}
		if err := cf.file.Close(); err != nil && firstErr == nil {
			firstErr = &PersistenceError{ChannelID: id, Err: err}
		}
		w.log.Info(fmt.Sprintf("  Channel %d: %d events, %.2f MB",
			id, cf.events, float64(cf.bytes)/1024/1024), "module", "writer")
	}
	w.log.Info("All files closed", "module", "writer")
	return firstErr
}
