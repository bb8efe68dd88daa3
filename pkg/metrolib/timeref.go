package metrolib

import "time"

// TimeReference anchors every timestamp of one run. It is established
// once, before the first operation, and travels with the run so that
// a resumed process measures against the same origin.
type TimeReference struct {
	// RefMs is the monotonic reading taken at run start.
	RefMs float64
	// Start is the wall-clock start of the run, used for file naming.
	Start time.Time
	clock Clock
}

// NewTimeReference captures the current instant of clock as a run origin.
func NewTimeReference(clock Clock) TimeReference {
	return TimeReference{
		RefMs: clock.NowMs(),
		Start: clock.Wall(),
		clock: clock,
	}
}

// RestoreTimeReference rebuilds a reference from persisted values.
func RestoreTimeReference(clock Clock, refMs float64, startUnixMs int64) TimeReference {
	return TimeReference{
		RefMs: refMs,
		Start: time.UnixMilli(startUnixMs),
		clock: clock,
	}
}

// RelativeNowMs returns the milliseconds elapsed since the reference.
func (t TimeReference) RelativeNowMs() float64 {
	return t.Clock().NowMs() - t.RefMs
}

// Clock returns the clock the reference reads from.
func (t TimeReference) Clock() Clock {
	if t.clock == nil {
		return SystemClock{}
	}
	return t.clock
}
