package runner

import (
	"context"
	"fmt"

	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
)

// ContinuousConfig configures a Continuous coordinator.
type ContinuousConfig struct {
	Scenario string
	Timing   Timing
	Policy   FailurePolicy
	Ref      metrolib.TimeReference
	// Log and Tracer are shared with the preparation phase when set.
	Log    *metrolib.ExecutionLog
	Tracer *metrolib.Tracer
	Status *metrolib.StatusTracker
}

// Continuous runs a whole scenario on the calling goroutine.
type Continuous struct {
	env    Env
	cfg    ContinuousConfig
	log    *metrolib.ExecutionLog
	tracer *metrolib.Tracer
	status *metrolib.StatusTracker
}

// NewContinuous returns a coordinator for one run.
func NewContinuous(env Env, cfg ContinuousConfig) *Continuous {
	env = env.withDefaults()
	c := &Continuous{env: env, cfg: cfg, log: cfg.Log, tracer: cfg.Tracer, status: cfg.Status}
	if c.log == nil {
		c.log = metrolib.NewExecutionLog(cfg.Scenario, cfg.Ref.Start)
	}
	if c.tracer == nil {
		c.tracer = metrolib.NewTracer(cfg.Scenario, cfg.Ref)
	}
	if c.status == nil {
		c.status = metrolib.NewStatusTracker(metrolib.RunStatus{Scenario: cfg.Scenario, Mode: "continuous"}, nil)
	}
	return c
}

// ExecutionLog returns the log the run appends to.
func (c *Continuous) ExecutionLog() *metrolib.ExecutionLog { return c.log }

// Run executes insts in order. After the last step it signals completion
// until ctx is cancelled and returns nil. A failed step under
// HaltOnFailure raises the failure alert until ctx is cancelled and
// returns an error wrapping ErrStepFailed. Cancellation between steps
// returns ctx.Err().
func (c *Continuous) Run(ctx context.Context, insts []metrolib.Instance) error {
	timing := c.cfg.Timing
	clock := c.env.Clock
	c.status.Update(func(s *metrolib.RunStatus) {
		s.Running = true
		s.OperationsStarted = true
		s.Total = len(insts)
		s.LastMessage = "starting operations..."
	})
	c.env.Sounder.Play(ctx, signaller.SoundOperationsStarted)
	c.env.Metrics.RunStarted()
	defer c.env.Metrics.RunEnded()

	prevStart := c.cfg.Ref.RelativeNowMs()
	for i, inst := range insts {
		if err := ctx.Err(); err != nil {
			return c.cancelled(err)
		}
		res := executeStep(ctx, i, inst, c.cfg.Ref, c.tracer, func(ctx context.Context, busy bool) error {
			if busy {
				if err := clock.Sleep(ctx, timing.SetupGrace); err != nil {
					return err
				}
			}
			delay := metrolib.ResolveDelay(prevStart, c.cfg.Ref.RelativeNowMs(), inst.Pause(), timing.DefaultPauseMs)
			return clock.Sleep(ctx, metrolib.MsToDuration(float64(delay)))
		})
		if res.Cancelled && res.Err == nil {
			return c.cancelled(ctx.Err())
		}
		c.env.Metrics.ObserveStep(res.Type, res.duration(), !res.Ok())
		if !res.Ok() {
			c.env.Log.Error("%s: step %d (%s) failed: %v", c.cfg.Scenario, i, res.Name, res.Err)
			if c.cfg.Policy == HaltOnFailure {
				return c.fail(ctx, res)
			}
			c.status.Message(fmt.Sprintf("step %d failed: %v", i, res.Err))
			continue
		}
		prevStart = res.StartMs
		c.log.Log(res.Entry(c.cfg.Scenario))
		c.status.Update(func(s *metrolib.RunStatus) { s.Completed = i + 1 })
	}

	if err := c.flush(); err != nil {
		c.env.Log.Error("%s: save logs: %v", c.cfg.Scenario, err)
	}
	c.env.Log.Info("%s: finished %d operations", c.cfg.Scenario, len(insts))
	c.status.Update(func(s *metrolib.RunStatus) {
		s.OperationsFinished = true
		s.Finished = true
		s.LastMessage = "finished operations"
	})
	signalUntilCancelled(ctx, clock, c.env.Sounder, signaller.SoundOperationsFinished, timing.FinishedInterval)
	c.status.Update(func(s *metrolib.RunStatus) { s.Running = false })
	return nil
}

func (c *Continuous) fail(ctx context.Context, res StepResult) error {
	if err := c.flush(); err != nil {
		c.env.Log.Error("%s: save logs: %v", c.cfg.Scenario, err)
	}
	c.status.Update(func(s *metrolib.RunStatus) {
		s.Failed = true
		s.LastMessage = fmt.Sprintf("failure: %v", res.Err)
	})
	signalUntilCancelled(ctx, c.env.Clock, c.env.Sounder, signaller.SoundFailure, c.cfg.Timing.FailureInterval)
	c.status.Update(func(s *metrolib.RunStatus) { s.Running = false })
	return fmt.Errorf("%w: step %d (%s): %v", ErrStepFailed, res.Index, res.Name, res.Err)
}

func (c *Continuous) cancelled(err error) error {
	if ferr := c.flush(); ferr != nil {
		c.env.Log.Error("%s: save logs: %v", c.cfg.Scenario, ferr)
	}
	c.status.Update(func(s *metrolib.RunStatus) {
		s.Running = false
		s.LastMessage = fmt.Sprintf("got interrupted: %v", err)
	})
	return err
}

func (c *Continuous) flush() error {
	if err := c.log.Sync(c.env.Fs, c.env.LogDir); err != nil {
		return err
	}
	return c.tracer.Sync(c.env.Fs, c.env.LogDir)
}
