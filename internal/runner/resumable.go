package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
)

// WakeScheduler is the durable timer facility driving a Resumable run.
// Requests are keyed by run id; scheduling under a key supersedes the
// request pending under it.
type WakeScheduler interface {
	ScheduleAt(key string, at time.Time, payload []byte) (scheduler.Token, error)
	CancelKey(key string) error
}

// ErrRunStopped is reported when a step notices its run was stopped.
var ErrRunStopped = errors.New("run stopped")

// ResumableConfig configures a Resumable coordinator.
type ResumableConfig struct {
	Timing Timing
	Policy FailurePolicy
	// Listener receives a status snapshot after each step. May be nil.
	Listener metrolib.StatusListener
}

// Resumable executes one step per delivered wake request. It serves any
// number of runs; everything a step needs comes from the record in the
// wake payload.
type Resumable struct {
	env    Env
	cfg    ResumableConfig
	parser *metrolib.Parser
	wake   WakeScheduler
	ctx    context.Context

	mu   sync.Mutex
	runs map[string]*runHandle
	// active holds the runs counted in the runs_active gauge.
	active  map[string]struct{}
	stopped map[string]struct{}
	wg      sync.WaitGroup
}

// runHandle lets Stop cancel the step currently executing for a run.
type runHandle struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewResumable returns a coordinator whose steps stop signalling once
// ctx is cancelled.
func NewResumable(ctx context.Context, env Env, parser *metrolib.Parser, wake WakeScheduler, cfg ResumableConfig) *Resumable {
	return &Resumable{
		env:     env.withDefaults(),
		cfg:     cfg,
		parser:  parser,
		wake:    wake,
		ctx:     ctx,
		runs:    make(map[string]*runHandle),
		active:  make(map[string]struct{}),
		stopped: make(map[string]struct{}),
	}
}

// Start validates scenario text and schedules its first step after the
// startup delay. The returned record is the one registered.
func (r *Resumable) Start(runID, scenario, text string) (metrolib.ResumptionRecord, error) {
	lines, err := r.parser.ExpandLines(text)
	if err != nil {
		return metrolib.ResumptionRecord{}, err
	}
	if len(lines) == 0 {
		return metrolib.ResumptionRecord{}, metrolib.ErrEmptyScenario
	}
	ref := metrolib.NewTimeReference(r.env.Clock)
	now := ref.RelativeNowMs()
	delay := r.nextDelay(metrolib.Fixed(r.cfg.Timing.StartupDelayMs), now, now, 0)
	rec := metrolib.ResumptionRecord{
		Version:            metrolib.RecordVersion,
		RunID:              runID,
		TimeRefMs:          ref.RefMs,
		ScheduledTimeMs:    now + delay,
		OperationIndex:     0,
		OperationLines:     lines,
		ScenarioID:         scenario,
		ExecutionStartTime: ref.Start.UnixMilli(),
	}
	if err := r.register(rec, now); err != nil {
		return metrolib.ResumptionRecord{}, err
	}
	r.begin(runID)
	r.env.Log.Info("%s: run %s scheduled, %d operations, first in %.0fms", scenario, runID, len(lines), delay)
	r.publish(rec, func(s *metrolib.RunStatus) {
		s.Running = true
		s.OperationsStarted = true
		s.LastMessage = "scheduled first operation"
	})
	return rec, nil
}

// Adopt counts runID as active without scheduling anything. It is used
// for runs whose wake request survived a restart.
func (r *Resumable) Adopt(runID string) {
	r.begin(runID)
}

// Stop cancels the pending wake request of runID. A step that is
// executing completes but schedules nothing further, and a request
// already fired for runID is dropped. Cancelling the coordinator context
// instead only ends signalling; in-flight steps still register their
// successor.
func (r *Resumable) Stop(runID string) error {
	r.mu.Lock()
	r.stopped[runID] = struct{}{}
	h, ok := r.runs[runID]
	r.mu.Unlock()
	if ok {
		h.cancel(ErrRunStopped)
	}
	// The handle is cancelled first so that a step registering its
	// successor concurrently sees the cause and withdraws it.
	err := r.wake.CancelKey(runID)
	r.end(runID)
	return err
}

// HandleWake executes the step described by payload on a new goroutine
// and returns immediately.
func (r *Resumable) HandleWake(payload []byte) {
	rec, err := metrolib.UnmarshalRecord(payload)
	if err != nil {
		r.env.Log.Error("resumable: drop wake request: %v", err)
		return
	}
	ref := rec.TimeReference(r.env.Clock)
	actualStartMs := ref.RelativeNowMs()
	h, ok := r.acquire(rec.RunID)
	if !ok {
		r.env.Log.Info("%s: drop wake request of stopped run %s", rec.ScenarioID, rec.RunID)
		return
	}
	r.begin(rec.RunID)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(rec.RunID, h)
		r.step(h.ctx, rec, ref, actualStartMs)
	}()
}

// Wait blocks until every spawned step goroutine has returned.
func (r *Resumable) Wait() {
	r.wg.Wait()
}

// acquire registers the handle of a step. It fails for stopped runs.
func (r *Resumable) acquire(runID string) (*runHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, stopped := r.stopped[runID]; stopped {
		return nil, false
	}
	ctx, cancel := context.WithCancelCause(r.ctx)
	h := &runHandle{ctx: ctx, cancel: cancel}
	r.runs[runID] = h
	return h, true
}

func (r *Resumable) release(runID string, h *runHandle) {
	h.cancel(nil)
	r.mu.Lock()
	if r.runs[runID] == h {
		delete(r.runs, runID)
	}
	r.mu.Unlock()
}

func (r *Resumable) begin(runID string) {
	r.mu.Lock()
	_, ok := r.active[runID]
	r.active[runID] = struct{}{}
	r.mu.Unlock()
	if !ok {
		r.env.Metrics.RunStarted()
	}
}

// end is idempotent so a run stopped while it terminates counts once.
func (r *Resumable) end(runID string) {
	r.mu.Lock()
	_, ok := r.active[runID]
	delete(r.active, runID)
	r.mu.Unlock()
	if ok {
		r.env.Metrics.RunEnded()
	}
}

func (r *Resumable) step(ctx context.Context, rec metrolib.ResumptionRecord, ref metrolib.TimeReference, actualStartMs float64) {
	scenario := rec.ScenarioID
	durationPre := actualStartMs - rec.ScheduledTimeMs
	tracer := metrolib.NewTracer(scenario, ref)
	tracer.TraceAt(rec.ScheduledTimeMs, metrolib.TraceScheduled)
	r.env.Metrics.ObserveLateness(durationPre)
	r.env.Log.Info("%s: step %d/%d late by %.1fms", scenario, rec.OperationIndex+1, len(rec.OperationLines), durationPre)

	res := r.execute(ctx, rec, ref, tracer)
	r.env.Metrics.ObserveStep(res.Type, res.duration(), !res.Ok())
	if res.Ok() {
		execLog := metrolib.NewExecutionLog(scenario, ref.Start)
		execLog.Log(res.Entry(scenario))
		if err := execLog.Sync(r.env.Fs, r.env.LogDir); err != nil {
			r.env.Log.Error("%s: save log: %v", scenario, err)
		}
	} else {
		r.env.Log.Error("%s: step %d failed: %v", scenario, rec.OperationIndex, res.Err)
	}
	if err := tracer.Sync(r.env.Fs, r.env.LogDir); err != nil {
		r.env.Log.Error("%s: save trace: %v", scenario, err)
	}
	r.publish(rec, func(s *metrolib.RunStatus) {
		s.Running = true
		s.OperationsStarted = true
		s.Completed = rec.OperationIndex + 1
		if res.Ok() {
			s.LastMessage = fmt.Sprintf("finished %s", res.Name)
		} else {
			s.LastMessage = fmt.Sprintf("step %d failed: %v", rec.OperationIndex, res.Err)
		}
	})

	if !res.Ok() && r.cfg.Policy == HaltOnFailure {
		r.terminate(ctx, rec, signaller.SoundFailure, fmt.Sprintf("failure: %v", res.Err))
		return
	}
	if rec.IsLast() {
		r.terminate(ctx, rec, signaller.SoundOperationsFinished, "finished operations")
		return
	}
	if err := r.advance(ctx, rec, ref, actualStartMs, durationPre); err != nil {
		if errors.Is(err, ErrRunStopped) {
			r.env.Log.Info("%s: run %s stopped after step %d", scenario, rec.RunID, rec.OperationIndex)
			r.end(rec.RunID)
			r.publish(rec, func(s *metrolib.RunStatus) {
				s.Running = false
				s.LastMessage = "stopped"
			})
			return
		}
		r.env.Log.Error("%s: cannot schedule step %d: %v", scenario, rec.OperationIndex+1, err)
		r.terminate(ctx, rec, signaller.SoundFailure, fmt.Sprintf("failure: %v", err))
	}
}

// execute re-creates the current operation from its line and runs it.
// A line that no longer parses fails only this step.
func (r *Resumable) execute(ctx context.Context, rec metrolib.ResumptionRecord, ref metrolib.TimeReference, tracer *metrolib.Tracer) StepResult {
	inst, err := r.parser.ParseOne(rec.CurrentLine())
	if err != nil {
		return StepResult{Index: rec.OperationIndex, Err: err}
	}
	return executeStep(ctx, rec.OperationIndex, inst, ref, tracer, nil)
}

func (r *Resumable) advance(ctx context.Context, rec metrolib.ResumptionRecord, ref metrolib.TimeReference, actualStartMs, durationPre float64) error {
	next, err := r.parser.ParseSpec(rec.NextLine())
	if err != nil {
		return err
	}
	now := ref.RelativeNowMs()
	delay := r.nextDelay(next.Pause, actualStartMs, now, durationPre)
	if errors.Is(context.Cause(ctx), ErrRunStopped) {
		return ErrRunStopped
	}
	if err := r.register(rec.Next(now+delay), now); err != nil {
		return err
	}
	// Stop may have landed while the successor was being stored.
	if errors.Is(context.Cause(ctx), ErrRunStopped) {
		if err := r.wake.CancelKey(rec.RunID); err != nil {
			r.env.Log.Error("%s: withdraw step %d: %v", rec.ScenarioID, rec.OperationIndex+1, err)
		}
		return ErrRunStopped
	}
	return nil
}

// nextDelay resolves pause against the actual start of the current step,
// subtracts the lateness of that step and raises the result to at least
// the minimum pause in whole multiples of it.
func (r *Resumable) nextDelay(p metrolib.Pause, actualStartMs, nowMs, durationPre float64) float64 {
	minMs := r.cfg.Timing.MinPauseMs
	resolved := float64(metrolib.ResolveDelay(actualStartMs, nowMs, p, minMs))
	return metrolib.FloorTo(resolved-durationPre, minMs)
}

func (r *Resumable) register(rec metrolib.ResumptionRecord, nowMs float64) error {
	payload, err := rec.Marshal()
	if err != nil {
		return err
	}
	at := r.env.Clock.Wall().Add(metrolib.MsToDuration(rec.ScheduledTimeMs - nowMs))
	if _, err := r.wake.ScheduleAt(rec.RunID, at, payload); err != nil {
		return fmt.Errorf("schedule step %d: %w", rec.OperationIndex, err)
	}
	return nil
}

func (r *Resumable) terminate(ctx context.Context, rec metrolib.ResumptionRecord, s signaller.Sound, msg string) {
	r.env.Log.Info("%s: run %s %s", rec.ScenarioID, rec.RunID, msg)
	failed := s == signaller.SoundFailure
	flags := func(st *metrolib.RunStatus) {
		st.OperationsStarted = true
		st.Completed = rec.OperationIndex + 1
		st.Finished = !failed
		st.OperationsFinished = !failed
		st.Failed = failed
		st.LastMessage = msg
	}
	r.publish(rec, func(st *metrolib.RunStatus) {
		flags(st)
		st.Running = true
	})
	interval := r.cfg.Timing.FinishedInterval
	if failed {
		interval = r.cfg.Timing.FailureInterval
	}
	signalUntilCancelled(ctx, r.env.Clock, r.env.Sounder, s, interval)
	r.end(rec.RunID)
	r.publish(rec, flags)
}

func (r *Resumable) publish(rec metrolib.ResumptionRecord, fn func(*metrolib.RunStatus)) {
	if r.cfg.Listener == nil {
		return
	}
	s := metrolib.RunStatus{
		RunID:    rec.RunID,
		Scenario: rec.ScenarioID,
		Mode:     "resumable",
		Total:    len(rec.OperationLines),
	}
	fn(&s)
	r.cfg.Listener.OnStatus(s)
}
