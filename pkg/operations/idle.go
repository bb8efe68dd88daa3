package operations

import (
	"context"
	"fmt"

	"github.com/energylab/metronom/pkg/metrolib"
)

type idleOperation struct {
	metrolib.BaseOperation
	clock      metrolib.Clock
	durationMs int
}

func (d Deps) newIdle(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	ms, err := args.Int("duration_ms", 1000)
	if err != nil {
		return nil, err
	}
	return &idleOperation{clock: d.Clock, durationMs: ms}, nil
}

func (o *idleOperation) Run(ctx context.Context) error {
	if o.durationMs <= 0 {
		return nil
	}
	return o.clock.Sleep(ctx, metrolib.MsToDuration(float64(o.durationMs)))
}

func (o *idleOperation) Debug() string {
	return fmt.Sprintf("duration_ms=%d", o.durationMs)
}
