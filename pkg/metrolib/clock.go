package metrolib

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the monotonic time used for scheduling and the wall
// time used for naming output files.
type Clock interface {
	// NowMs returns a monotonic reading in milliseconds. The reading is
	// comparable across processes on the same boot.
	NowMs() float64
	// Wall returns the current wall-clock time.
	Wall() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the Clock backed by the operating system.
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) NowMs() float64 {
	return monotonicMs()
}

func (SystemClock) Wall() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	return SleepContext(ctx, d)
}

// SleepContext sleeps for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MsToDuration converts fractional milliseconds to a time.Duration.
func MsToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// ManualClock is a Clock whose time only moves when advanced. Sleep
// advances the clock instead of blocking.
type ManualClock struct {
	mu   sync.Mutex
	ms   float64
	wall time.Time
}

var _ Clock = (*ManualClock)(nil)

// NewManualClock returns a clock reading startMs with wall time wall.
func NewManualClock(startMs float64, wall time.Time) *ManualClock {
	return &ManualClock{ms: startMs, wall: wall}
}

func (c *ManualClock) NowMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *ManualClock) Wall() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// Advance moves the clock forward by ms milliseconds.
func (c *ManualClock) Advance(ms float64) {
	c.mu.Lock()
	c.ms += ms
	c.wall = c.wall.Add(MsToDuration(ms))
	c.mu.Unlock()
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(float64(d) / float64(time.Millisecond))
	return nil
}
