package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/google/uuid"
)

// delayedRun is the payload of a start wake request.
type delayedRun struct {
	RunID        string `json:"runId"`
	Scenario     string `json:"scenario"`
	Mode         string `json:"mode"`
	UseSignaller bool   `json:"useSignaller"`
}

// StartRun validates the named scenario and starts it now, at StartAt
// or at the next occurrence of Cron. A scenario has at most one active
// run.
func (a *Api) StartRun(p common.StartRunParams) (common.StartRunResult, error) {
	mode := p.Mode
	if mode == "" {
		mode = common.ModeResumable
	}
	if mode != common.ModeContinuous && mode != common.ModeResumable {
		return common.StartRunResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, p.Mode)
	}
	name, err := scenarios.Name(p.Scenario)
	if err != nil {
		return common.StartRunResult{}, err
	}
	text, err := a.scenarios.Read(name)
	if err != nil {
		return common.StartRunResult{}, err
	}
	if _, err := a.expand(text); err != nil {
		return common.StartRunResult{}, err
	}

	now := a.env.Clock.Wall()
	var startAt time.Time
	switch {
	case p.Cron != "":
		if startAt, err = scheduler.NextCronOccurrence(p.Cron, now); err != nil {
			return common.StartRunResult{}, err
		}
	case p.StartAt > now.UnixMilli():
		startAt = time.UnixMilli(p.StartAt)
	}

	id := uuid.NewString()
	r := &run{
		pending: !startAt.IsZero(),
		status:  metrolib.RunStatus{RunID: id, Scenario: name, Mode: mode},
	}
	if err := a.reserve(r); err != nil {
		return common.StartRunResult{}, err
	}

	if r.pending {
		payload, _ := json.Marshal(delayedRun{RunID: id, Scenario: name, Mode: mode, UseSignaller: p.UseSignaller})
		if _, err := a.sched.ScheduleAt(startKeyPrefix+id, startAt, payload); err != nil {
			a.forget(id)
			return common.StartRunResult{}, err
		}
		a.log.Info("%s: run %s starts at %s", name, id, startAt.Format(time.RFC3339))
		a.mu.Lock()
		r.status.LastMessage = "scheduled for " + startAt.Format(time.RFC3339)
		st := r.status
		a.mu.Unlock()
		a.publish(st)
		return common.StartRunResult{RunID: id, StartAt: startAt.UnixMilli()}, nil
	}

	if err := a.launch(r, text, p.UseSignaller); err != nil {
		a.forget(id)
		return common.StartRunResult{}, err
	}
	return common.StartRunResult{RunID: id}, nil
}

func (a *Api) expand(text string) ([]string, error) {
	lines, err := a.parser.ExpandLines(text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, metrolib.ErrEmptyScenario
	}
	return lines, nil
}

// reserve registers r unless its scenario already has an active run.
func (a *Api) reserve(r *run) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, other := range a.runs {
		if other.status.Scenario == r.status.Scenario && other.active() {
			return fmt.Errorf("%w: %s (%s)", ErrRunActive, r.status.Scenario, other.status.RunID)
		}
	}
	a.runs[r.status.RunID] = r
	a.order = append(a.order, r.status.RunID)
	return nil
}

func (a *Api) forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// launch starts a reserved run immediately.
func (a *Api) launch(r *run, text string, useSignaller bool) error {
	a.mu.Lock()
	st := r.status
	a.mu.Unlock()
	if st.Mode == common.ModeResumable {
		_, err := a.resumable.Start(st.RunID, st.Scenario, text)
		return err
	}
	insts, err := a.parser.Parse(text)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancelCause(a.ctx)
	a.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status.Running = true
	a.mu.Unlock()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(r.done)
		defer cancel(nil)
		a.runContinuous(ctx, st, insts, useSignaller)
	}()
	return nil
}

func (a *Api) runContinuous(ctx context.Context, st metrolib.RunStatus, insts []metrolib.Instance, useSignaller bool) {
	ref := metrolib.NewTimeReference(a.env.Clock)
	st.Running = true
	cfg := runner.ContinuousConfig{
		Scenario: st.Scenario,
		Timing:   a.cfg.Timing,
		Policy:   a.cfg.ContinuousPolicy,
		Ref:      ref,
		Log:      metrolib.NewExecutionLog(st.Scenario, ref.Start),
		Tracer:   metrolib.NewTracer(st.Scenario, ref),
		Status:   metrolib.NewStatusTracker(st, a),
	}
	if useSignaller {
		sig := a.newSignaller(a.cfg.Timing.SyncEdges)
		defer sig.Close()
		if err := runner.NewPreparation(a.env, sig, cfg).Run(ctx); err != nil {
			a.log.Error("%s: preparation of run %s failed: %v", st.Scenario, st.RunID, err)
			cfg.Status.Update(func(s *metrolib.RunStatus) {
				s.Running = false
				s.Failed = true
			})
			return
		}
	}
	if err := runner.NewContinuous(a.env, cfg).Run(ctx, insts); err != nil {
		a.log.Warning("%s: run %s ended: %v", st.Scenario, st.RunID, err)
	}
}

func (a *Api) delayedStart(id string, payload []byte) {
	var d delayedRun
	if err := json.Unmarshal(payload, &d); err != nil {
		a.log.Error("api: drop start request %s: %v", id, err)
		return
	}
	a.mu.Lock()
	r, ok := a.runs[id]
	if !ok {
		r = &run{status: metrolib.RunStatus{RunID: id, Scenario: d.Scenario, Mode: d.Mode}}
		a.runs[id] = r
		a.order = append(a.order, id)
	}
	r.pending = false
	a.mu.Unlock()

	text, err := a.scenarios.Read(d.Scenario)
	if err == nil {
		err = a.launch(r, text, d.UseSignaller)
	}
	if err != nil {
		a.log.Error("%s: delayed run %s: %v", d.Scenario, id, err)
		a.OnStatus(metrolib.RunStatus{RunID: id, Scenario: d.Scenario, Mode: d.Mode,
			Failed: true, LastMessage: fmt.Sprintf("failure: %v", err)})
		return
	}
	a.log.Info("%s: delayed run %s started", d.Scenario, id)
}
