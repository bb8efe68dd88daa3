package metrolib

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Trace labels shared by the executors.
const (
	TraceScheduled = "scheduled"
	TraceOpStart   = "op start"
	TraceOpEnd     = "op end"
	TraceSyncStart = "ts_a"
	TraceSyncHigh  = "ts_b"
	TraceSyncLow   = "te_a"
	TraceSyncEnd   = "te_b"
)

// TraceEvent is one timestamped marker.
type TraceEvent struct {
	TimeMs float64
	Label  string
}

// Tracer collects fine-grained markers for one run. A Tracer only exists
// once NewTracer bound it to a scenario and time reference.
type Tracer struct {
	mu       sync.Mutex
	scenario string
	ref      TimeReference
	events   []TraceEvent
	flushed  int
}

// NewTracer returns a tracer for scenario measuring against ref.
func NewTracer(scenario string, ref TimeReference) *Tracer {
	return &Tracer{scenario: scenario, ref: ref}
}

// Trace records label at the current relative time.
func (t *Tracer) Trace(label string) {
	if t == nil {
		panic(ErrTracerNotInitialized)
	}
	t.TraceAt(t.ref.RelativeNowMs(), label)
}

// TraceAt records label at an explicit relative time.
func (t *Tracer) TraceAt(ms float64, label string) {
	if t == nil {
		panic(ErrTracerNotInitialized)
	}
	t.mu.Lock()
	t.events = append(t.events, TraceEvent{TimeMs: ms, Label: label})
	t.mu.Unlock()
}

// Events returns a copy of the recorded markers.
func (t *Tracer) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}

// FileName is the base name of the file Sync writes to.
func (t *Tracer) FileName() string {
	return TraceFileName(t.scenario, t.ref.Start)
}

// Sync appends unflushed markers to dir/FileName() on fs.
func (t *Tracer) Sync(fs afero.Fs, dir string) error {
	if t == nil {
		return ErrTracerNotInitialized
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([][]string, 0, len(t.events)-t.flushed)
	for _, e := range t.events[t.flushed:] {
		rows = append(rows, []string{seconds(e.TimeMs), e.Label})
	}
	if err := appendCSV(fs, filepath.Join(dir, t.FileName()), traceHeader, rows); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	t.flushed = len(t.events)
	return nil
}
