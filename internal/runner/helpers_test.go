package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/spf13/afero"
)

var testWall = time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// workOp advances the manual clock by ms while running.
type workOp struct {
	metrolib.BaseOperation
	clock *metrolib.ManualClock
	ms    float64
	busy  bool
	fail  bool
	panic bool
	after int
}

func (o *workOp) Before(context.Context) (bool, error) { return o.busy, nil }

func (o *workOp) Run(context.Context) error {
	if o.panic {
		panic("kaboom")
	}
	o.clock.Advance(o.ms)
	if o.fail {
		return errBoom
	}
	return nil
}

func (o *workOp) After(context.Context) error {
	o.after++
	return nil
}

func (o *workOp) Debug() string { return "ok" }

func testRegistry(clock *metrolib.ManualClock) *metrolib.Registry {
	reg := metrolib.NewRegistry()
	ctor := func(fail, busy, panics bool) metrolib.Constructor {
		return func(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
			ms, err := args.Int("ms", 0)
			if err != nil {
				return nil, err
			}
			return &workOp{clock: clock, ms: float64(ms), fail: fail, busy: busy, panic: panics}, nil
		}
	}
	reg.Register("work", ctor(false, false, false))
	reg.Register("fail", ctor(true, false, false))
	reg.Register("busy", ctor(false, true, false))
	reg.Register("panic", ctor(false, false, true))
	return reg
}

// cancelSounder records cues and cancels a context on the first
// terminal cue so that endless signalling loops return.
type cancelSounder struct {
	signaller.RecordingSounder
	cancel context.CancelFunc
}

func (c *cancelSounder) Play(ctx context.Context, s signaller.Sound) {
	c.RecordingSounder.Play(ctx, s)
	if s == signaller.SoundOperationsFinished || s == signaller.SoundFailure {
		c.cancel()
	}
}

type fixture struct {
	clock   *metrolib.ManualClock
	fs      afero.Fs
	log     *logger.MockLogger
	sounder *cancelSounder
	env     Env
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f := &fixture{
		clock:   metrolib.NewManualClock(0, testWall),
		fs:      afero.NewMemMapFs(),
		log:     logger.NewMockLogger(),
		sounder: &cancelSounder{cancel: cancel},
		ctx:     ctx,
	}
	f.env = Env{Clock: f.clock, Fs: f.fs, LogDir: "/logs", Log: f.log, Sounder: f.sounder}
	return f
}

func (f *fixture) readFile(t *testing.T, name string) string {
	t.Helper()
	b, err := afero.ReadFile(f.fs, "/logs/"+name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

// fakeWake keeps the latest request per key.
type fakeWake struct {
	mu       sync.Mutex
	pending  map[string]fakeRequest
	cancels  []string
	failNext error
}

type fakeRequest struct {
	at      time.Time
	payload []byte
}

func newFakeWake() *fakeWake {
	return &fakeWake{pending: make(map[string]fakeRequest)}
}

func (w *fakeWake) ScheduleAt(key string, at time.Time, payload []byte) (scheduler.Token, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return "", err
	}
	w.pending[key] = fakeRequest{at: at, payload: payload}
	return scheduler.Token(key), nil
}

func (w *fakeWake) CancelKey(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, key)
	w.cancels = append(w.cancels, key)
	return nil
}

func (w *fakeWake) take(key string) (fakeRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.pending[key]
	delete(w.pending, key)
	return r, ok
}

func (w *fakeWake) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
