// Package stream produces raw EEG samples from a headband or the simulator,
// fans them out to subscribers and turns them into real-time band power and
// LRI snapshots.
package stream

import (
	"context"
	"errors"

	"github.com/mahidalhan/axon/internal/eeg"
)

var (
	ErrAlreadyStarted = errors.New("stream: source already started")
	ErrNotConnected   = errors.New("stream: no such connection")
	ErrOpenChannel    = errors.New("stream: could not open device channel")
)

// Handler consumes one sample. It runs on the source's dispatch goroutine and
// must not block for long.
type Handler func(eeg.Sample)

// Source is a stream of four-channel samples.
//
// Start begins producing samples in the background and reports channel
// failures immediately. Once Stop returns no subscriber is invoked again.
// Subscribers are called once per sample, in arrival order.
type Source interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	Subscribe(h Handler) (unsubscribe func())
	// Name labels the source in logs and metrics.
	Name() string
}

// Device is a headband that can be connected to.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// SimulatedDevice is what discovery reports in simulation mode.
var SimulatedDevice = Device{Name: "Simulated Muse", Address: "00:00:00:00:00:00"}
