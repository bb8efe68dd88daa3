package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/energylab/metronom/internal/metrics"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newResumable(f *fixture, wake WakeScheduler, policy FailurePolicy, listener metrolib.StatusListener) *Resumable {
	return NewResumable(f.ctx, f.env, metrolib.NewParser(testRegistry(f.clock)), wake, ResumableConfig{
		Timing:   DefaultTiming(),
		Policy:   policy,
		Listener: listener,
	})
}

// deliver fires the pending request of runID lateMs after its due time
// and waits for the step to finish.
func deliver(t *testing.T, f *fixture, r *Resumable, wake *fakeWake, runID string, lateMs float64) metrolib.ResumptionRecord {
	t.Helper()
	req, ok := wake.take(runID)
	if !ok {
		t.Fatalf("no wake request pending for %s", runID)
	}
	rec, err := metrolib.UnmarshalRecord(req.payload)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	wait := req.at.Sub(f.clock.Wall())
	f.clock.Advance(float64(wait)/float64(time.Millisecond) + lateMs)
	r.HandleWake(req.payload)
	r.Wait()
	return rec
}

func TestResumable_StartSchedulesFirstStep(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)

	rec, err := r.Start("run-1", "bench.txt", "2;P2000;a;work;ms=10\n1;S6000;b;work;\n")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.OperationIndex != 0 || len(rec.OperationLines) != 3 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ScheduledTimeMs != 10000 {
		t.Errorf("first step scheduled at %v, want 10000", rec.ScheduledTimeMs)
	}
	req, ok := wake.take("run-1")
	if !ok {
		t.Fatal("first step not registered")
	}
	if want := testWall.Add(10 * time.Second); !req.at.Equal(want) {
		t.Errorf("wake at %v, want %v", req.at, want)
	}
	if rec.OperationLines[0] != rec.OperationLines[1] {
		t.Errorf("iterations should expand to identical lines: %q", rec.OperationLines)
	}
}

func TestResumable_StartRejectsBadScenario(t *testing.T) {
	f := newFixture(t)
	r := newResumable(f, newFakeWake(), ContinueOnFailure, nil)

	if _, err := r.Start("run", "bench.txt", "1;P10;a;nope;\n"); !errors.Is(err, metrolib.ErrUnknownOperation) {
		t.Errorf("unknown type: err = %v", err)
	}
	if _, err := r.Start("run", "bench.txt", "# nothing\n"); !errors.Is(err, metrolib.ErrEmptyScenario) {
		t.Errorf("empty scenario: err = %v", err)
	}
}

func TestResumable_NextDelaySubtractsLateness(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;ms=10\n1;P7000;b;work;ms=10\n"); err != nil {
		t.Fatal(err)
	}

	deliver(t, f, r, wake, "run", 3)
	req, ok := wake.take("run")
	if !ok {
		t.Fatal("second step not registered")
	}
	next, err := metrolib.UnmarshalRecord(req.payload)
	if err != nil {
		t.Fatal(err)
	}
	// a started at 10003 and ended at 10013; 7000 minus 3ms of lateness.
	if next.OperationIndex != 1 || next.ScheduledTimeMs != 10013+6997 {
		t.Errorf("next = index %d at %v", next.OperationIndex, next.ScheduledTimeMs)
	}
}

func TestResumable_MinimumPauseRaisesShortDelay(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;ms=10\n1;P1000;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	deliver(t, f, r, wake, "run", 0)
	req, _ := wake.take("run")
	next, err := metrolib.UnmarshalRecord(req.payload)
	if err != nil {
		t.Fatal(err)
	}
	if got := next.ScheduledTimeMs - 10010; got != 5000 {
		t.Errorf("delay = %v, want the 5000ms minimum", got)
	}
}

func TestResumable_FailedStepDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	first, err := r.Start("run", "bench.txt", "1;;a;work;ms=10\n1;;b;fail;\n1;;c;work;ms=10\n")
	if err != nil {
		t.Fatal(err)
	}

	deliver(t, f, r, wake, "run", 0)
	deliver(t, f, r, wake, "run", 0)
	deliver(t, f, r, wake, "run", 0)
	if wake.size() != 0 {
		t.Error("last step must not register a successor")
	}

	name := metrolib.LogFileName("bench.txt", first.TimeReference(f.clock).Start)
	csv := f.readFile(t, name)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("log has %d lines, want header and two rows:\n%s", len(lines), csv)
	}
	if !strings.HasPrefix(lines[1], "bench.txt,a,") || !strings.HasPrefix(lines[2], "bench.txt,c,") {
		t.Errorf("unexpected rows:\n%s", csv)
	}
	if f.sounder.Count(signaller.SoundOperationsFinished) == 0 {
		t.Error("expected the operations finished cue after the last step")
	}
	trace := f.readFile(t, metrolib.TraceFileName("bench.txt", first.TimeReference(f.clock).Start))
	if n := strings.Count(trace, metrolib.TraceScheduled); n != 3 {
		t.Errorf("scheduled traced %d times, want 3", n)
	}
}

func TestResumable_HaltOnFailure(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, HaltOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;fail;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	deliver(t, f, r, wake, "run", 0)
	if wake.size() != 0 {
		t.Error("halted run registered a successor")
	}
	if f.sounder.Count(signaller.SoundFailure) == 0 {
		t.Error("expected the failure alert")
	}
}

// A record carries everything a step needs: executing it on a fresh
// coordinator produces the same log row as on the original one.
func TestResumable_RecordSurvivesRestart(t *testing.T) {
	text := "1;;a;work;ms=10\n1;;b;work;ms=10\n1;;c;work;ms=20\n"

	run := func(restartAt int) []string {
		f := newFixture(t)
		wake := newFakeWake()
		r := newResumable(f, wake, ContinueOnFailure, nil)
		first, err := r.Start("run", "bench.txt", text)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			if i == restartAt {
				r = newResumable(f, wake, ContinueOnFailure, nil)
			}
			deliver(t, f, r, wake, "run", 0)
		}
		name := metrolib.LogFileName("bench.txt", first.TimeReference(f.clock).Start)
		return strings.Split(strings.TrimSpace(f.readFile(t, name)), "\n")
	}

	straight := run(-1)
	restarted := run(2)
	if strings.Join(straight, "\n") != strings.Join(restarted, "\n") {
		t.Errorf("logs differ after restart:\n%v\n%v", straight, restarted)
	}
	if len(straight) != 4 {
		t.Errorf("got %d lines, want 4", len(straight))
	}
}

func TestResumable_StopCancelsPending(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop("run"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if wake.size() != 0 || len(wake.cancels) != 1 {
		t.Errorf("pending = %d, cancels = %v", wake.size(), wake.cancels)
	}
}

// stoppingOp stops its own run while executing.
type stoppingOp struct {
	metrolib.BaseOperation
	stop func()
}

func (o stoppingOp) Run(context.Context) error {
	o.stop()
	return nil
}

func TestResumable_StopDuringStepSchedulesNothing(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	reg := testRegistry(f.clock)
	var r *Resumable
	reg.Register("stopper", func(string, metrolib.Pause, metrolib.Args) (metrolib.Operation, error) {
		return stoppingOp{stop: func() { _ = r.Stop("run") }}, nil
	})
	r = NewResumable(f.ctx, f.env, metrolib.NewParser(reg), wake, ResumableConfig{Timing: DefaultTiming()})
	if _, err := r.Start("run", "bench.txt", "1;;a;stopper;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	deliver(t, f, r, wake, "run", 0)
	if wake.size() != 0 {
		t.Error("stopped run registered a successor")
	}
	if !f.log.Contains("stopped") {
		t.Error("stop not logged")
	}
}

// stopOnRegister stops the run from inside ScheduleAt when the step at
// index is registered, before or after the request reaches the store.
type stopOnRegister struct {
	*fakeWake
	r     *Resumable
	index int
	after bool
}

func (w *stopOnRegister) ScheduleAt(key string, at time.Time, payload []byte) (scheduler.Token, error) {
	rec, err := metrolib.UnmarshalRecord(payload)
	if err != nil || rec.OperationIndex != w.index {
		return w.fakeWake.ScheduleAt(key, at, payload)
	}
	if !w.after {
		_ = w.r.Stop(key)
		return w.fakeWake.ScheduleAt(key, at, payload)
	}
	tok, err := w.fakeWake.ScheduleAt(key, at, payload)
	_ = w.r.Stop(key)
	return tok, err
}

func TestResumable_StopWhileRegisteringSuccessor(t *testing.T) {
	for _, after := range []bool{false, true} {
		f := newFixture(t)
		wake := &stopOnRegister{fakeWake: newFakeWake(), index: 1, after: after}
		r := newResumable(f, wake, ContinueOnFailure, nil)
		wake.r = r
		if _, err := r.Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n1;;c;work;\n"); err != nil {
			t.Fatal(err)
		}
		deliver(t, f, r, wake.fakeWake, "run", 0)
		if n := wake.size(); n != 0 {
			t.Errorf("after=%v: %d requests pending for a stopped run", after, n)
		}
		if !f.log.Contains("stopped after step 0") {
			t.Errorf("after=%v: stop not noticed by the step", after)
		}
	}
}

func TestResumable_WakeAfterStopIsDropped(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	req, _ := wake.take("run")
	if err := r.Stop("run"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	r.HandleWake(req.payload)
	r.Wait()
	if wake.size() != 0 {
		t.Error("fired request of a stopped run scheduled a successor")
	}
	if _, err := f.fs.Stat("/logs"); err == nil {
		t.Error("fired request of a stopped run executed a step")
	}
}

func assertRunsActive(t *testing.T, m *metrics.Metrics, want int) {
	t.Helper()
	expected := fmt.Sprintf(`# HELP metronom_runs_active Runs currently executing or waiting for their next step.
# TYPE metronom_runs_active gauge
metronom_runs_active %d
`, want)
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "metronom_runs_active"); err != nil {
		t.Error(err)
	}
}

func TestResumable_StopWithPendingWakeEndsRun(t *testing.T) {
	f := newFixture(t)
	m := metrics.New()
	f.env.Metrics = m
	r := newResumable(f, newFakeWake(), ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	assertRunsActive(t, m, 1)
	if err := r.Stop("run"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	assertRunsActive(t, m, 0)
	if err := r.Stop("run"); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	assertRunsActive(t, m, 0)
}

func TestResumable_RunResumedAfterRestartBalancesGauge(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	if _, err := newResumable(f, wake, ContinueOnFailure, nil).Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	f.env.Metrics = m
	r := newResumable(f, wake, ContinueOnFailure, nil)
	deliver(t, f, r, wake, "run", 0)
	assertRunsActive(t, m, 1)
	deliver(t, f, r, wake, "run", 0)
	assertRunsActive(t, m, 0)
}

func TestResumable_RegisterFailureTerminates(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	r := newResumable(f, wake, ContinueOnFailure, nil)
	if _, err := r.Start("run", "bench.txt", "1;;a;work;\n1;;b;work;\n"); err != nil {
		t.Fatal(err)
	}
	wake.failNext = errors.New("disk full")
	deliver(t, f, r, wake, "run", 0)
	if f.sounder.Count(signaller.SoundFailure) == 0 {
		t.Error("expected the failure alert")
	}
	if !f.log.Contains("disk full") {
		t.Error("schedule error not logged")
	}
}

func TestResumable_DropsInvalidPayload(t *testing.T) {
	f := newFixture(t)
	r := newResumable(f, newFakeWake(), ContinueOnFailure, nil)
	r.HandleWake([]byte(`{"version":1}`))
	r.Wait()
	if len(f.log.Errors()) != 1 {
		t.Errorf("errors = %v", f.log.Errors())
	}
}

func TestResumable_PublishesStatus(t *testing.T) {
	f := newFixture(t)
	wake := newFakeWake()
	var mu sync.Mutex
	var seen []metrolib.RunStatus
	r := newResumable(f, wake, ContinueOnFailure, metrolib.StatusFunc(func(s metrolib.RunStatus) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}))
	if _, err := r.Start("run", "bench.txt", "1;;a;work;\n"); err != nil {
		t.Fatal(err)
	}
	deliver(t, f, r, wake, "run", 0)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("got %d status updates", len(seen))
	}
	last := seen[len(seen)-1]
	if last.RunID != "run" || last.Mode != "resumable" || !last.Finished || last.Completed != 1 || last.Total != 1 {
		t.Errorf("final status = %+v", last)
	}
}
