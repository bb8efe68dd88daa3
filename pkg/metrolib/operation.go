package metrolib

import "context"

// Operation is a single measurable unit of work.
type Operation interface {
	// Before prepares the operation. It returns true when it performed
	// setup work that warrants a short grace delay before Run.
	Before(ctx context.Context) (bool, error)
	// Run executes the measured workload.
	Run(ctx context.Context) error
	// After releases resources acquired in Before or Run.
	After(ctx context.Context) error
	// Debug returns a short free-form annotation written to the log.
	Debug() string
}

// Instance binds a constructed operation to the line it was created from.
type Instance struct {
	Spec OperationSpec
	Op   Operation
}

// Name is the user-given identifier of the instance.
func (i Instance) Name() string { return i.Spec.Identifier }

// Pause is the spacing policy applied after the instance runs.
func (i Instance) Pause() Pause { return i.Spec.Pause }

// BaseOperation provides no-op Before, After and Debug methods.
type BaseOperation struct{}

func (BaseOperation) Before(context.Context) (bool, error) { return false, nil }
func (BaseOperation) After(context.Context) error          { return nil }
func (BaseOperation) Debug() string                        { return "" }
