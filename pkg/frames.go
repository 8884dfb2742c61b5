package daq

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeader is the fixed on-disk record header. The four unsigned 64-bit
// little-endian fields in this order are a stable contract shared with the
// downstream conversion pipeline; any change breaks every existing reader.
type FrameHeader struct {
	FrameSize   uint64 // total bytes including this header
	DeviceID    uint64
	ChannelID   uint64
	EventNumber uint64
}

// FrameHeaderSize is the encoded size of FrameHeader in bytes.
const FrameHeaderSize = 32

// SampleSize is the encoded size of one waveform sample in bytes.
const SampleSize = 4

// EncodeFrame appends one framed record to buf: header followed by the raw
// float32 little-endian payload.
func EncodeFrame(buf *bytes.Buffer, deviceID, channelID int, eventNumber uint64, samples []float32) error {
	header := FrameHeader{
		FrameSize:   uint64(FrameHeaderSize + SampleSize*len(samples)),
		DeviceID:    uint64(deviceID),
		ChannelID:   uint64(channelID),
		EventNumber: eventNumber,
	}
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return err
	}
	return binary.Write(buf, binary.LittleEndian, samples)
}

// ReadFrame reads the next frame from r. It returns io.EOF cleanly at a
// frame boundary and io.ErrUnexpectedEOF on a truncated frame.
func ReadFrame(r io.Reader) (FrameHeader, []float32, error) {
	var header FrameHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if err == io.EOF {
			return header, nil, io.EOF
		}
		return header, nil, err
	}

	if header.FrameSize < FrameHeaderSize || (header.FrameSize-FrameHeaderSize)%SampleSize != 0 {
		return header, nil, fmt.Errorf("invalid frame size %d", header.FrameSize)
	}

	nSamples := (header.FrameSize - FrameHeaderSize) / SampleSize
	samples := make([]float32, nSamples)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return header, nil, err
	}
	return header, samples, nil
}
