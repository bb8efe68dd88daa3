package api

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/spf13/afero"
)

type noopOp struct {
	metrolib.BaseOperation
}

func (noopOp) Run(context.Context) error { return nil }

type failOp struct {
	metrolib.BaseOperation
}

func (failOp) Run(context.Context) error { return errors.New("boom") }

func testRegistry() *metrolib.Registry {
	reg := metrolib.NewRegistry()
	reg.Register("noop", func(string, metrolib.Pause, metrolib.Args) (metrolib.Operation, error) {
		return noopOp{}, nil
	})
	reg.Register("fail", func(string, metrolib.Pause, metrolib.Args) (metrolib.Operation, error) {
		return failOp{}, nil
	})
	return reg
}

func testTiming() runner.Timing {
	return runner.Timing{
		DefaultPauseMs:   1,
		SetupGrace:       time.Millisecond,
		MinPauseMs:       10,
		StartupDelayMs:   10,
		FinishedInterval: 5 * time.Millisecond,
		FailureInterval:  5 * time.Millisecond,
		SyncEdges:        2,
		SyncEdgeDelta:    time.Millisecond,
		HandshakeTimeout: time.Second,
		HandshakePoll:    time.Millisecond,
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []metrolib.RunStatus
}

func (p *recordingPublisher) PublishStatus(s metrolib.RunStatus) {
	p.mu.Lock()
	p.statuses = append(p.statuses, s)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(runID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.statuses {
		if s.RunID == runID {
			n++
		}
	}
	return n
}

type fixture struct {
	api       *Api
	store     *scenarios.Store
	log       *logger.MockLogger
	publisher *recordingPublisher
	fs        afero.Fs
	wakes     *scheduler.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	wakes, err := scheduler.OpenSQLiteStore(filepath.Join(t.TempDir(), "wakes.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { wakes.Close() })
	f := &fixture{
		fs:        afero.NewMemMapFs(),
		log:       logger.NewMockLogger(),
		publisher: &recordingPublisher{},
		wakes:     wakes,
	}
	f.store = scenarios.NewStore(f.fs, "/scenarios")
	f.api = f.open(t)
	return f
}

// open starts an Api over the fixture's wake store, as a daemon
// starting up would.
func (f *fixture) open(t *testing.T) *Api {
	t.Helper()
	env := runner.Env{Fs: f.fs, LogDir: "/logs", Log: f.log}
	env.Sounder = signaller.LogSounder{Log: f.log}
	a, err := New(context.Background(), Config{
		Timing:           testTiming(),
		ContinuousPolicy: runner.HaltOnFailure,
		ResumablePolicy:  runner.ContinueOnFailure,
		Version:          "1.2.3",
	}, Deps{
		Env:       env,
		Registry:  testRegistry(),
		Scenarios: f.store,
		Store:     f.wakes,
		Publisher: f.publisher,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// restart closes the running Api and opens a new one over the same store.
func (f *fixture) restart(t *testing.T) {
	t.Helper()
	if err := f.api.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.api = f.open(t)
}

func (f *fixture) write(t *testing.T, name, text string) {
	t.Helper()
	if _, err := f.store.Write(name, text); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func (f *fixture) waitFor(t *testing.T, runID string, pred func(metrolib.RunStatus) bool) metrolib.RunStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := f.api.Status(runID)
		if err == nil && pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s: condition not met, last status %+v (err %v)", runID, s, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func finished(s metrolib.RunStatus) bool { return s.Finished && s.Running }

func TestStartRun_ContinuousFinishesAndStops(t *testing.T) {
	f := newFixture(t)
	f.write(t, "cpu", "3;P1;w;noop;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "cpu", Mode: common.ModeContinuous})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	s := f.waitFor(t, res.RunID, finished)
	if s.Completed != 3 || s.Total != 3 || s.Mode != common.ModeContinuous {
		t.Fatalf("status = %+v", s)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun: %v", err)
	}
	s, _ = f.api.Status(res.RunID)
	if s.Running {
		t.Fatalf("still running after stop: %+v", s)
	}
	if err := f.api.StopRun(res.RunID); !errors.Is(err, ErrRunNotActive) {
		t.Fatalf("second stop = %v, want ErrRunNotActive", err)
	}
	if f.publisher.count(res.RunID) == 0 {
		t.Fatal("no status published")
	}
	ok, _ := afero.Exists(f.fs, "/logs")
	if !ok {
		t.Fatal("execution log directory not written")
	}
}

func TestStartRun_OneActiveRunPerScenario(t *testing.T) {
	f := newFixture(t)
	f.write(t, "cpu", "1;;w;noop;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "cpu", Mode: common.ModeContinuous})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	_, err = f.api.StartRun(common.StartRunParams{Scenario: "cpu.scenario"})
	if !errors.Is(err, ErrRunActive) {
		t.Fatalf("second start = %v, want ErrRunActive", err)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun: %v", err)
	}
	res2, err := f.api.StartRun(common.StartRunParams{Scenario: "cpu", Mode: common.ModeContinuous})
	if err != nil {
		t.Fatalf("start after stop: %v", err)
	}
	if res2.RunID == res.RunID {
		t.Fatal("run id reused")
	}
	if got := len(f.api.Runs()); got != 2 {
		t.Fatalf("Runs() has %d entries, want 2", got)
	}
}

func TestStartRun_ResumableRunsEveryStep(t *testing.T) {
	f := newFixture(t)
	f.write(t, "net", "2;;a;noop;\n1;;b;fail;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "net"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	s := f.waitFor(t, res.RunID, finished)
	if s.Mode != common.ModeResumable || s.Completed != 3 || s.Total != 3 {
		t.Fatalf("status = %+v", s)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun: %v", err)
	}
	s, _ = f.api.Status(res.RunID)
	if s.Running {
		t.Fatalf("still running after stop: %+v", s)
	}
}

func TestStartRun_DelayedStartCanBeCancelled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "later", "1;;w;noop;\n")

	at := time.Now().Add(time.Hour)
	res, err := f.api.StartRun(common.StartRunParams{Scenario: "later", StartAt: at.UnixMilli()})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if res.StartAt != at.UnixMilli() {
		t.Fatalf("StartAt = %d, want %d", res.StartAt, at.UnixMilli())
	}
	s, err := f.api.Status(res.RunID)
	if err != nil || s.Running || !strings.HasPrefix(s.LastMessage, "scheduled for") {
		t.Fatalf("status = %+v, %v", s, err)
	}
	if _, err := f.api.StartRun(common.StartRunParams{Scenario: "later"}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("start while pending = %v, want ErrRunActive", err)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun: %v", err)
	}
	s, _ = f.api.Status(res.RunID)
	if s.LastMessage != "cancelled" {
		t.Fatalf("LastMessage = %q", s.LastMessage)
	}
	if err := f.api.StopRun(res.RunID); !errors.Is(err, ErrRunNotActive) {
		t.Fatalf("second stop = %v", err)
	}
}

func TestStartRun_DelayedStartFires(t *testing.T) {
	f := newFixture(t)
	f.write(t, "soon", "2;;w;noop;\n")

	at := time.Now().Add(30 * time.Millisecond)
	res, err := f.api.StartRun(common.StartRunParams{
		Scenario: "soon",
		Mode:     common.ModeContinuous,
		StartAt:  at.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	s := f.waitFor(t, res.RunID, finished)
	if s.Completed != 2 {
		t.Fatalf("status = %+v", s)
	}
	if !f.log.Contains("delayed run " + res.RunID + " started") {
		t.Fatal("delayed start not logged")
	}
}

func TestRestart_ResumableRunIsRestored(t *testing.T) {
	f := newFixture(t)
	f.write(t, "net", "1;;a;noop;\n1;P3600000;b;noop;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "net"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	f.waitFor(t, res.RunID, func(s metrolib.RunStatus) bool { return s.Completed == 1 })
	f.restart(t)

	s, err := f.api.Status(res.RunID)
	if err != nil {
		t.Fatalf("Status after restart: %v", err)
	}
	if !s.Running || s.Mode != common.ModeResumable || s.Scenario != "net" || s.Completed != 1 || s.Total != 2 {
		t.Fatalf("restored status = %+v", s)
	}
	if _, err := f.api.StartRun(common.StartRunParams{Scenario: "net"}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("second start after restart = %v, want ErrRunActive", err)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun after restart: %v", err)
	}
	s, _ = f.api.Status(res.RunID)
	if s.Running || s.LastMessage != "stopped" {
		t.Fatalf("status after stop = %+v", s)
	}
	if pending, _ := f.wakes.Pending(); len(pending) != 0 {
		t.Fatalf("stopped run still has %d wake requests", len(pending))
	}
}

func TestRestart_DelayedStartIsRestored(t *testing.T) {
	f := newFixture(t)
	f.write(t, "later", "1;;w;noop;\n")

	at := time.Now().Add(time.Hour)
	res, err := f.api.StartRun(common.StartRunParams{Scenario: "later", StartAt: at.UnixMilli()})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	f.restart(t)

	s, err := f.api.Status(res.RunID)
	if err != nil || s.Running || !strings.HasPrefix(s.LastMessage, "scheduled for") {
		t.Fatalf("restored status = %+v, %v", s, err)
	}
	if _, err := f.api.StartRun(common.StartRunParams{Scenario: "later"}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("start while pending = %v, want ErrRunActive", err)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun after restart: %v", err)
	}
	if s, _ = f.api.Status(res.RunID); s.LastMessage != "cancelled" {
		t.Fatalf("LastMessage = %q", s.LastMessage)
	}
}

func TestStartRun_PreparationWithSignaller(t *testing.T) {
	f := newFixture(t)
	f.write(t, "rig", "1;;w;noop;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "rig", Mode: common.ModeContinuous, UseSignaller: true})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	s := f.waitFor(t, res.RunID, finished)
	if !s.Connected || !s.Syncing || !s.Disconnected {
		t.Fatalf("handshake flags not set: %+v", s)
	}
}

func TestStartRun_Errors(t *testing.T) {
	f := newFixture(t)
	f.write(t, "ok", "1;;w;noop;\n")
	f.write(t, "empty", "# nothing here\n")
	f.write(t, "broken", "1;;w;nope;\n")

	tests := []struct {
		name string
		p    common.StartRunParams
		want error
	}{
		{"missing", common.StartRunParams{Scenario: "missing"}, scenarios.ErrNotFound},
		{"bad name", common.StartRunParams{Scenario: ".."}, scenarios.ErrInvalidName},
		{"bad mode", common.StartRunParams{Scenario: "ok", Mode: "sometimes"}, ErrInvalidMode},
		{"empty", common.StartRunParams{Scenario: "empty"}, metrolib.ErrEmptyScenario},
		{"unknown op", common.StartRunParams{Scenario: "broken"}, metrolib.ErrUnknownOperation},
		{"bad cron", common.StartRunParams{Scenario: "ok", Cron: "not a cron"}, scheduler.ErrInvalidCron},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.api.StartRun(tt.p); !errors.Is(err, tt.want) {
				t.Fatalf("StartRun = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.api.Runs()) != 0 {
		t.Fatal("failed starts left runs behind")
	}
	if _, err := f.api.Status("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Status = %v", err)
	}
	if err := f.api.StopRun("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("StopRun = %v", err)
	}
}

func TestStartRun_CronSchedulesNextOccurrence(t *testing.T) {
	f := newFixture(t)
	f.write(t, "nightly", "1;;w;noop;\n")

	res, err := f.api.StartRun(common.StartRunParams{Scenario: "nightly", Cron: "0 3 * * *"})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	at := time.UnixMilli(res.StartAt)
	if !at.After(time.Now()) || at.Minute() != 0 || at.Hour() != 3 {
		t.Fatalf("StartAt = %v", at)
	}
	if err := f.api.StopRun(res.RunID); err != nil {
		t.Fatalf("StopRun: %v", err)
	}
}

func TestScenariosAndValidate(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b", "2;P10;w;noop;\n")
	f.write(t, "a", "1;;w;nope;\n")

	infos, err := f.api.Scenarios()
	if err != nil {
		t.Fatalf("Scenarios: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("Scenarios = %+v", infos)
	}
	if infos[0].Error == "" || infos[1].Operations != 2 {
		t.Fatalf("Scenarios = %+v", infos)
	}

	res, err := f.api.Validate(common.ValidateParams{Name: "b"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Operations != 2 || len(res.Lines) != 2 || !strings.HasPrefix(res.Lines[0], "1;P10;w;noop;") {
		t.Fatalf("Validate = %+v", res)
	}
	if _, err := f.api.Validate(common.ValidateParams{Text: "x;;w;noop;"}); !errors.Is(err, metrolib.ErrParse) {
		t.Fatalf("Validate text = %v, want ErrParse", err)
	}
	if _, err := f.api.Validate(common.ValidateParams{}); !errors.Is(err, ErrNothingToValidate) {
		t.Fatalf("Validate empty = %v", err)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	if v := f.api.Version(); v.Version != "1.2.3" {
		t.Fatalf("Version = %+v", v)
	}
}
