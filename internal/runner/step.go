package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/energylab/metronom/pkg/metrolib"
)

// ErrStepFailed wraps the failure of a step that halted a run.
var ErrStepFailed = errors.New("operation failed")

// FailurePolicy decides what a coordinator does after a failed step.
type FailurePolicy int

const (
	// HaltOnFailure stops the run and alerts the operator.
	HaltOnFailure FailurePolicy = iota
	// ContinueOnFailure logs the failure and moves on to the next step.
	ContinueOnFailure
)

func (p FailurePolicy) String() string {
	if p == ContinueOnFailure {
		return "continue"
	}
	return "halt"
}

// StepResult is the outcome of one executed step. Err is nil for Ok
// steps; otherwise the step Failed with Err as the reason.
type StepResult struct {
	Index     int
	Name      string
	Type      string
	StartMs   float64
	EndMs     float64
	Debug     string
	Err       error
	Cancelled bool
}

// Ok reports whether the step succeeded.
func (r StepResult) Ok() bool { return r.Err == nil && !r.Cancelled }

// Entry converts a successful step to its log row.
func (r StepResult) Entry(scenario string) metrolib.LogEntry {
	return metrolib.LogEntry{
		Scenario:  scenario,
		Operation: r.Name,
		StartMs:   r.StartMs,
		EndMs:     r.EndMs,
		Debug:     r.Debug,
	}
}

// waitFunc runs between Before and Run. busy is the result of Before.
type waitFunc func(ctx context.Context, busy bool) error

// executeStep runs the Before, Run and After hooks of inst. Hooks run
// under a context that is never cancelled, so cancellation of ctx only
// interrupts wait. Panics in hooks are turned into failures.
func executeStep(ctx context.Context, index int, inst metrolib.Instance, ref metrolib.TimeReference, tracer *metrolib.Tracer, wait waitFunc) (res StepResult) {
	res = StepResult{Index: index, Name: inst.Name(), Type: inst.Spec.Type}
	opCtx := context.WithoutCancel(ctx)
	op := inst.Op

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%s panicked: %v", inst.Name(), p)
		}
	}()

	busy, err := op.Before(opCtx)
	if err != nil {
		res.Err = fmt.Errorf("before %s: %w", inst.Name(), err)
		return res
	}
	if wait != nil {
		if err := wait(ctx, busy); err != nil {
			res.Cancelled = true
			if aerr := op.After(opCtx); aerr != nil {
				res.Err = fmt.Errorf("after %s: %w", inst.Name(), aerr)
			}
			return res
		}
	}

	res.StartMs = ref.RelativeNowMs()
	tracer.TraceAt(res.StartMs, metrolib.TraceOpStart)
	runErr := op.Run(opCtx)
	res.EndMs = ref.RelativeNowMs()
	tracer.TraceAt(res.EndMs, metrolib.TraceOpEnd)
	afterErr := op.After(opCtx)
	res.Debug = op.Debug()

	switch {
	case runErr != nil:
		res.Err = fmt.Errorf("run %s: %w", inst.Name(), runErr)
	case afterErr != nil:
		res.Err = fmt.Errorf("after %s: %w", inst.Name(), afterErr)
	}
	return res
}

func (r StepResult) duration() time.Duration {
	return metrolib.MsToDuration(r.EndMs - r.StartMs)
}
