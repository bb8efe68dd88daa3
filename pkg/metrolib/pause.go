package metrolib

import (
	"fmt"
	"math"
	"strconv"
)

// PauseKind selects how the delay after an operation is computed.
type PauseKind int

const (
	// PauseNone uses the executor default spacing.
	PauseNone PauseKind = iota
	// PauseFixed waits a constant amount after an operation.
	PauseFixed
	// PauseRate keeps consecutive starts on a fixed period.
	PauseRate
)

func (k PauseKind) String() string {
	switch k {
	case PauseFixed:
		return "FIXED"
	case PauseRate:
		return "RATE"
	default:
		return "NONE"
	}
}

// Pause is the spacing policy attached to an operation.
type Pause struct {
	Kind    PauseKind
	ValueMs int64
}

// NoPause is the zero spacing policy; operations use the executor default.
var NoPause = Pause{Kind: PauseNone}

// Fixed returns a FIXED pause of ms milliseconds.
func Fixed(ms int64) Pause {
	return Pause{Kind: PauseFixed, ValueMs: ms}
}

// Rate returns a RATE pause with the given period.
func Rate(ms int64) Pause {
	return Pause{Kind: PauseRate, ValueMs: ms}
}

// Validate reports whether the pause can be resolved.
func (p Pause) Validate() error {
	switch p.Kind {
	case PauseNone:
		return nil
	case PauseFixed:
		if p.ValueMs < 0 {
			return fmt.Errorf("%w: fixed pause %d is negative", ErrInvalidPause, p.ValueMs)
		}
		return nil
	case PauseRate:
		if p.ValueMs <= 0 {
			return fmt.Errorf("%w: rate pause must be positive, got %d", ErrInvalidPause, p.ValueMs)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidPause, p.Kind)
	}
}

// String renders the pause the way it is written in a scenario line.
func (p Pause) String() string {
	switch p.Kind {
	case PauseFixed:
		return "P" + strconv.FormatInt(p.ValueMs, 10)
	case PauseRate:
		return "S" + strconv.FormatInt(p.ValueMs, 10)
	default:
		return ""
	}
}

// ParsePause reads the pause field of a scenario line: empty for NONE,
// P<ms> for FIXED and S<ms> for RATE.
func ParsePause(field string) (Pause, error) {
	if field == "" {
		return NoPause, nil
	}
	var kind PauseKind
	switch field[0] {
	case 'P':
		kind = PauseFixed
	case 'S':
		kind = PauseRate
	default:
		return Pause{}, fmt.Errorf("%w: bad pause %q", ErrInvalidPause, field)
	}
	v, err := strconv.ParseInt(field[1:], 10, 64)
	if err != nil {
		return Pause{}, fmt.Errorf("%w: bad pause value %q", ErrInvalidPause, field)
	}
	p := Pause{Kind: kind, ValueMs: v}
	if err := p.Validate(); err != nil {
		return Pause{}, err
	}
	return p, nil
}

// ResolveDelay returns the milliseconds to wait before the next operation.
//
// FIXED yields its value and NONE yields minAndDefaultMs. RATE aims at
// previousStartMs+v; when less than minAndDefaultMs remains, whole periods
// are added until the delay reaches the minimum, so starts stay aligned
// to the period.
func ResolveDelay(previousStartMs, nowMs float64, p Pause, minAndDefaultMs int64) int64 {
	switch p.Kind {
	case PauseFixed:
		return p.ValueMs
	case PauseRate:
		v := float64(p.ValueMs)
		minMs := float64(minAndDefaultMs)
		remaining := v - (nowMs - previousStartMs)
		if remaining < minMs {
			remaining += math.Ceil((minMs-remaining)/v) * v
		}
		return int64(remaining)
	default:
		return minAndDefaultMs
	}
}

// FloorTo raises delay by whole multiples of minMs until it is at least
// minMs. A non-positive minMs leaves the delay unchanged.
func FloorTo(delayMs float64, minMs int64) float64 {
	m := float64(minMs)
	if minMs <= 0 || delayMs >= m {
		return delayMs
	}
	return delayMs + math.Ceil((m-delayMs)/m)*m
}
