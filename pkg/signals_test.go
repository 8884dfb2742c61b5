package daq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalsStartStop(t *testing.T) {
	s := NewSignals()
	assert.False(t, s.Started())
	assert.False(t, s.Stopped())

	s.SetStart()
	assert.True(t, s.Started())
	s.ClearStart()
	assert.False(t, s.Started())

	s.SetStop()
	assert.True(t, s.Stopped())
	s.ClearStop()
	assert.False(t, s.Stopped())
}

func TestSignalsQuitIsIdempotent(t *testing.T) {
	s := NewSignals()
	assert.False(t, s.QuitRequested())

	s.RequestQuit()
	s.RequestQuit() // second call must not panic on the closed channel

	assert.True(t, s.QuitRequested())
	select {
	case <-s.Quit():
	default:
		t.Fatal("quit channel should be closed")
	}
}
