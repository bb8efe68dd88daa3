package runner

import (
	"errors"
	"strings"
	"testing"

	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
)

func TestPreparation_SyncSequence(t *testing.T) {
	f := newFixture(t)
	sig := signaller.NewLogSignaller(f.log)
	// connected for the first checks, then unplugged
	polls := 0
	sig.Connected = func() bool {
		polls++
		return polls <= 2
	}
	cfg := ContinuousConfig{
		Scenario: "bench.txt",
		Timing:   DefaultTiming(),
		Ref:      metrolib.NewTimeReference(f.clock),
	}
	cfg.Log = metrolib.NewExecutionLog(cfg.Scenario, cfg.Ref.Start)
	cfg.Status = metrolib.NewStatusTracker(metrolib.RunStatus{Scenario: cfg.Scenario}, nil)

	if err := NewPreparation(f.env, sig, cfg).Run(f.ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	edges := sig.Edges()
	if len(edges) != 16 {
		t.Fatalf("got %d edges, want 16", len(edges))
	}
	for i, high := range edges {
		if high != (i%2 == 0) {
			t.Fatalf("edge %d high=%v", i, high)
		}
	}

	entries := cfg.Log.Entries()
	if len(entries) != 8 {
		t.Fatalf("got %d sync entries, want 8", len(entries))
	}
	// 1ms grace, then pulses of 500ms high and 500ms low.
	if entries[0].Operation != "sync" || entries[0].StartMs != 1 || entries[0].EndMs != 501 {
		t.Errorf("first sync entry = %+v", entries[0])
	}
	if entries[1].StartMs != 1001 {
		t.Errorf("second pulse starts at %v, want 1001", entries[1].StartMs)
	}

	st := cfg.Status.Snapshot()
	if !st.Connected || !st.Syncing || !st.Disconnected || st.Failed {
		t.Errorf("status = %+v", st)
	}
	for _, s := range []signaller.Sound{signaller.SoundUSBConnected, signaller.SoundSyncDone, signaller.SoundWaitForDisconnect, signaller.SoundUSBDisconnected} {
		if f.sounder.Count(s) != 1 {
			t.Errorf("cue %v played %d times", s, f.sounder.Count(s))
		}
	}
	trace := f.readFile(t, metrolib.TraceFileName("bench.txt", testWall))
	if n := strings.Count(trace, ","+metrolib.TraceSyncStart); n != 8 {
		t.Errorf("ts_a traced %d times, want 8", n)
	}
}

func TestPreparation_ConnectTimeout(t *testing.T) {
	f := newFixture(t)
	sig := signaller.NewLogSignaller(f.log)
	sig.Connected = func() bool { return false }
	cfg := ContinuousConfig{Scenario: "bench.txt", Timing: DefaultTiming(), Ref: metrolib.NewTimeReference(f.clock)}
	p := NewPreparation(f.env, sig, cfg)

	err := p.Run(f.ctx)
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Run error = %v, want ErrHandshakeTimeout", err)
	}
	if len(sig.Edges()) != 0 {
		t.Error("no edge may be emitted without a connection")
	}
	if f.sounder.Count(signaller.SoundFailure) != 1 {
		t.Error("expected the failure cue")
	}
	// 10s timeout at 1s polls
	if now := f.clock.NowMs(); now != 10000 {
		t.Errorf("waited %vms, want 10000", now)
	}
}

func TestPreparation_NeverUnplugged(t *testing.T) {
	f := newFixture(t)
	sig := signaller.NewLogSignaller(f.log)
	cfg := ContinuousConfig{Scenario: "bench.txt", Timing: DefaultTiming(), Ref: metrolib.NewTimeReference(f.clock)}
	cfg.Status = metrolib.NewStatusTracker(metrolib.RunStatus{}, nil)

	err := NewPreparation(f.env, sig, cfg).Run(f.ctx)
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Run error = %v", err)
	}
	st := cfg.Status.Snapshot()
	if !st.Syncing || st.Disconnected || !st.Failed {
		t.Errorf("status = %+v", st)
	}
}

func TestPreparation_SignallerNotInitialized(t *testing.T) {
	f := newFixture(t)
	sig := signaller.NewLogSignaller(f.log)
	p := NewPreparation(f.env, brokenSignaller{sig}, ContinuousConfig{Scenario: "x", Timing: DefaultTiming(), Ref: metrolib.NewTimeReference(f.clock)})
	if err := p.Run(f.ctx); !errors.Is(err, errBoom) {
		t.Fatalf("Run error = %v", err)
	}
}

type brokenSignaller struct {
	*signaller.LogSignaller
}

func (brokenSignaller) Initialize() error { return errBoom }
