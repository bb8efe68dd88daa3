package api

import (
	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/pkg/metrolib"
)

// StopRun ends an active run. A delayed run is cancelled before it
// starts; a continuous run is interrupted and waited for; a resumable
// run schedules no further step.
func (a *Api) StopRun(id string) error {
	a.mu.Lock()
	r, ok := a.runs[id]
	if !ok {
		a.mu.Unlock()
		return ErrRunNotFound
	}
	if !r.active() {
		a.mu.Unlock()
		return ErrRunNotActive
	}
	pending, st, cancel, done := r.pending, r.status, r.cancel, r.done
	a.mu.Unlock()

	switch {
	case pending:
		if err := a.sched.CancelKey(startKeyPrefix + id); err != nil {
			return err
		}
		st.LastMessage = "cancelled"
	case st.Mode == common.ModeContinuous:
		if cancel != nil {
			cancel(runner.ErrRunStopped)
			<-done
		}
		a.mu.Lock()
		st = r.status
		a.mu.Unlock()
	default:
		if err := a.resumable.Stop(id); err != nil {
			return err
		}
		st.LastMessage = "stopped"
	}
	st.Running = false
	a.log.Info("%s: run %s stopped", st.Scenario, id)
	a.OnStatus(st)
	return nil
}

// Status returns the last known status of a run.
func (a *Api) Status(id string) (metrolib.RunStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.runs[id]
	if !ok {
		return metrolib.RunStatus{}, ErrRunNotFound
	}
	return r.status, nil
}

// Runs lists every run known since the daemon started, oldest first.
func (a *Api) Runs() []metrolib.RunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]metrolib.RunStatus, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.runs[id].status)
	}
	return out
}
