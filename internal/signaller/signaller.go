// Package signaller abstracts the measurement rig: the edge signaller
// used to align power traces with the execution log, and audible cues
// for the operator.
package signaller

import (
	"errors"
	"sync"

	"github.com/energylab/metronom/pkg/logger"
)

var ErrNotInitialized = errors.New("signaller not initialized")

// Signaller drives the synchronization line of a measurement rig.
type Signaller interface {
	Initialize() error
	// IsConnected reports whether the rig link (typically USB) is up.
	IsConnected() (bool, error)
	SignalHigh() error
	SignalLow() error
	Close() error
}

// LogSignaller stands in for hardware by logging edges. Connection state
// comes from the Connected function, which defaults to always connected.
type LogSignaller struct {
	mu        sync.Mutex
	log       logger.Logger
	ready     bool
	Connected func() bool
	edges     []bool
}

var _ Signaller = (*LogSignaller)(nil)

func NewLogSignaller(l logger.Logger) *LogSignaller {
	return &LogSignaller{log: l}
}

func (s *LogSignaller) Initialize() error {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.log.Info("signaller: initialized")
	return nil
}

func (s *LogSignaller) IsConnected() (bool, error) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return false, ErrNotInitialized
	}
	if s.Connected == nil {
		return true, nil
	}
	return s.Connected(), nil
}

func (s *LogSignaller) SignalHigh() error { return s.edge(true) }

func (s *LogSignaller) SignalLow() error { return s.edge(false) }

func (s *LogSignaller) edge(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotInitialized
	}
	s.edges = append(s.edges, high)
	if high {
		s.log.Info("signaller: high")
	} else {
		s.log.Info("signaller: low")
	}
	return nil
}

// Edges returns the emitted levels in order, true for high.
func (s *LogSignaller) Edges() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.edges...)
}

func (s *LogSignaller) Close() error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	return nil
}

// NewSimulatedSignaller returns a LogSignaller that reports the rig as
// connected until edges pulses (high and low) were emitted, then as
// unplugged. It lets a preparation complete without hardware.
func NewSimulatedSignaller(l logger.Logger, edges int) *LogSignaller {
	s := NewLogSignaller(l)
	s.Connected = func() bool { return len(s.Edges()) < 2*edges }
	return s
}
