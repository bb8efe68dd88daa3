package runner

import (
	"context"
	"time"

	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
)

// signalUntilCancelled plays s every interval until ctx is done.
// Cancellation is observed once per interval.
func signalUntilCancelled(ctx context.Context, clock metrolib.Clock, sounder signaller.Sounder, s signaller.Sound, interval time.Duration) {
	for ctx.Err() == nil {
		sounder.Play(ctx, s)
		if err := clock.Sleep(ctx, interval); err != nil {
			return
		}
	}
}

// WaitUntil polls pred every interval until it returns true or timeout
// elapses. It reports whether pred became true.
func WaitUntil(ctx context.Context, clock metrolib.Clock, timeout, interval time.Duration, pred func() bool) bool {
	deadline := clock.NowMs() + float64(timeout)/float64(time.Millisecond)
	for {
		if pred() {
			return true
		}
		if clock.NowMs() >= deadline {
			return false
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return false
		}
	}
}
