package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/metrolib"
)

// ErrHandshakeTimeout is returned when the rig does not reach the
// expected connection state in time.
var ErrHandshakeTimeout = errors.New("handshake timed out")

// Preparation aligns the power trace with the run before any operation
// executes: it waits for the rig link, emits sync pulses recorded in the
// execution log and waits for the operator to unplug the link.
type Preparation struct {
	env      Env
	timing   Timing
	sig      signaller.Signaller
	scenario string
	ref      metrolib.TimeReference
	log      *metrolib.ExecutionLog
	tracer   *metrolib.Tracer
	status   *metrolib.StatusTracker
}

// NewPreparation shares the log, tracer and status of cfg with the
// Continuous run that follows. Missing ones are created as NewContinuous
// would create them.
func NewPreparation(env Env, sig signaller.Signaller, cfg ContinuousConfig) *Preparation {
	p := &Preparation{
		env:      env.withDefaults(),
		timing:   cfg.Timing,
		sig:      sig,
		scenario: cfg.Scenario,
		ref:      cfg.Ref,
		log:      cfg.Log,
		tracer:   cfg.Tracer,
		status:   cfg.Status,
	}
	if p.log == nil {
		p.log = metrolib.NewExecutionLog(cfg.Scenario, cfg.Ref.Start)
	}
	if p.tracer == nil {
		p.tracer = metrolib.NewTracer(cfg.Scenario, cfg.Ref)
	}
	if p.status == nil {
		p.status = metrolib.NewStatusTracker(metrolib.RunStatus{Scenario: cfg.Scenario, Mode: "continuous"}, nil)
	}
	return p
}

// Run performs the handshake. Any error aborts the preparation.
func (p *Preparation) Run(ctx context.Context) error {
	if err := p.sig.Initialize(); err != nil {
		return fmt.Errorf("initialize signaller: %w", err)
	}

	p.status.Message("waiting for USB to connect")
	if !WaitUntil(ctx, p.env.Clock, p.timing.HandshakeTimeout, p.timing.HandshakePoll, p.connected) {
		return p.abort(ctx, fmt.Errorf("%w: signaller not connected", ErrHandshakeTimeout))
	}
	p.status.Update(func(s *metrolib.RunStatus) { s.Connected = true })
	p.env.Sounder.Play(ctx, signaller.SoundUSBConnected)

	p.status.Message("executing sync sequence")
	grace := metrolib.MsToDuration(float64(p.timing.DefaultPauseMs))
	if err := p.env.Clock.Sleep(ctx, grace); err != nil {
		return p.abort(ctx, err)
	}
	if err := p.syncEdges(ctx); err != nil {
		return p.abort(ctx, err)
	}
	if err := p.env.Clock.Sleep(ctx, grace); err != nil {
		return p.abort(ctx, err)
	}
	p.status.Update(func(s *metrolib.RunStatus) { s.Syncing = true })
	p.env.Sounder.Play(ctx, signaller.SoundSyncDone)

	p.env.Sounder.Play(ctx, signaller.SoundWaitForDisconnect)
	p.status.Message("waiting for USB to disconnect")
	disconnected := func() bool { return !p.connected() }
	if !WaitUntil(ctx, p.env.Clock, p.timing.HandshakeTimeout, p.timing.HandshakePoll, disconnected) {
		return p.abort(ctx, fmt.Errorf("%w: signaller not disconnected", ErrHandshakeTimeout))
	}
	p.status.Update(func(s *metrolib.RunStatus) { s.Disconnected = true })
	p.env.Sounder.Play(ctx, signaller.SoundUSBDisconnected)
	return nil
}

func (p *Preparation) connected() bool {
	ok, err := p.sig.IsConnected()
	return err == nil && ok
}

// syncEdges emits the configured number of pulses. Each edge is traced
// before and after the level change and logged at its midpoint.
func (p *Preparation) syncEdges(ctx context.Context) error {
	for i := 0; i < p.timing.SyncEdges; i++ {
		p.tracer.Trace(metrolib.TraceSyncStart)
		tsa := p.ref.RelativeNowMs()
		if err := p.sig.SignalHigh(); err != nil {
			return fmt.Errorf("sync edge %d high: %w", i, err)
		}
		tsb := p.ref.RelativeNowMs()
		p.tracer.Trace(metrolib.TraceSyncHigh)
		if err := p.env.Clock.Sleep(ctx, p.timing.SyncEdgeDelta); err != nil {
			return err
		}

		p.tracer.Trace(metrolib.TraceSyncLow)
		tea := p.ref.RelativeNowMs()
		if err := p.sig.SignalLow(); err != nil {
			return fmt.Errorf("sync edge %d low: %w", i, err)
		}
		teb := p.ref.RelativeNowMs()
		p.tracer.Trace(metrolib.TraceSyncEnd)
		if err := p.env.Clock.Sleep(ctx, p.timing.SyncEdgeDelta); err != nil {
			return err
		}

		p.log.Log(metrolib.LogEntry{
			Scenario:  p.scenario,
			Operation: "sync",
			StartMs:   (tsa + tsb) / 2,
			EndMs:     (tea + teb) / 2,
		})
	}
	if err := p.log.Sync(p.env.Fs, p.env.LogDir); err != nil {
		return err
	}
	return p.tracer.Sync(p.env.Fs, p.env.LogDir)
}

func (p *Preparation) abort(ctx context.Context, err error) error {
	p.env.Log.Error("preparation: %v", err)
	p.status.Update(func(s *metrolib.RunStatus) {
		s.Failed = true
		s.LastMessage = fmt.Sprintf("failure: %v", err)
	})
	p.env.Sounder.Play(ctx, signaller.SoundFailure)
	return err
}
