package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	daq "github.com/ac-lgad/daq_go/pkg"
)

// Small utility to inspect the wave_<N>.dat files produced by an
// acquisition run: walks the frames, validates the framing, and prints a
// per-frame or summary view.

func main() {
	summary := flag.Bool("summary", false, "Print only the per-file summary")
	maxFrames := flag.Int("max-frames", 0, "Stop after this many frames (0 = all)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: reader [-summary] [-max-frames N] wave_0.dat [wave_1.dat ...]")
		os.Exit(1)
	}

	exitCode := 0
	for _, path := range flag.Args() {
		if err := dumpFile(path, *summary, *maxFrames); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func dumpFile(path string, summary bool, maxFrames int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var frames, samples uint64
	var firstEvent, lastEvent uint64
	var bytes uint64

	for {
		header, payload, err := daq.ReadFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", frames, err)
		}

		if frames == 0 {
			firstEvent = header.EventNumber
		}
		lastEvent = header.EventNumber
		frames++
		samples += uint64(len(payload))
		bytes += header.FrameSize

		if !summary {
			fmt.Printf("frame %6d: digitizer %d channel %d event %d, %d samples\n",
				frames-1, header.DeviceID, header.ChannelID, header.EventNumber, len(payload))
		}
		if maxFrames > 0 && int(frames) >= maxFrames {
			break
		}
	}

	fmt.Printf("%s: %d frames, events %d..%d, %d samples, %.2f MB\n",
		path, frames, firstEvent, lastEvent, samples, float64(bytes)/1024/1024)
	return nil
}
