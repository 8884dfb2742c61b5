package daq

import (
	"sync"
	"sync/atomic"
)

// Signals carries the three shared conditions observed by every acquisition
// loop. The orchestrator is the only writer of Start and Stop; workers only
// read them. Quit is set once and never cleared. A Signals value is passed
// by pointer to each worker at spawn time.
type Signals struct {
	start atomic.Bool
	stop  atomic.Bool

	quit     chan struct{}
	quitOnce sync.Once
}

func NewSignals() *Signals {
	return &Signals{quit: make(chan struct{})}
}

func (s *Signals) SetStart()   { s.start.Store(true) }
func (s *Signals) ClearStart() { s.start.Store(false) }
func (s *Signals) Started() bool { return s.start.Load() }

func (s *Signals) SetStop()   { s.stop.Store(true) }
func (s *Signals) ClearStop() { s.stop.Store(false) }
func (s *Signals) Stopped() bool { return s.stop.Load() }

// RequestQuit is idempotent.
func (s *Signals) RequestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// QuitRequested reports whether RequestQuit has been called.
func (s *Signals) QuitRequested() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// Quit returns a channel closed on the first RequestQuit call.
func (s *Signals) Quit() <-chan struct{} { return s.quit }
