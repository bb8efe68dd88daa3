package runner

import "time"

// Timing holds the constants that shape a run.
type Timing struct {
	// DefaultPauseMs is the Continuous spacing for NONE pauses and the
	// floor for RATE pauses.
	DefaultPauseMs int64
	// SetupGrace is slept after a Before hook that reports setup work.
	SetupGrace time.Duration
	// MinPauseMs is the shortest Resumable spacing between steps.
	MinPauseMs int64
	// StartupDelayMs is the FIXED delay before the first Resumable step.
	StartupDelayMs int64
	// FinishedInterval spaces the "operations finished" cue.
	FinishedInterval time.Duration
	// FailureInterval spaces the failure alert.
	FailureInterval time.Duration
	// SyncEdges is the number of high/low pulses emitted in preparation.
	SyncEdges int
	// SyncEdgeDelta is the hold time of each pulse level.
	SyncEdgeDelta time.Duration
	// HandshakeTimeout bounds each wait for the rig to (dis)connect.
	HandshakeTimeout time.Duration
	// HandshakePoll is the polling interval of those waits.
	HandshakePoll time.Duration
}

// DefaultTiming returns the timing used by the energy rig.
func DefaultTiming() Timing {
	return Timing{
		DefaultPauseMs:   1,
		SetupGrace:       time.Millisecond,
		MinPauseMs:       5000,
		StartupDelayMs:   10000,
		FinishedInterval: 10 * time.Second,
		FailureInterval:  2 * time.Second,
		SyncEdges:        8,
		SyncEdgeDelta:    500 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
		HandshakePoll:    time.Second,
	}
}
