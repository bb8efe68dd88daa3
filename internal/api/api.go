// Package api owns the runs of a daemon: it starts scenarios in either
// coordinator mode, tracks their status and forwards durable wake
// requests to the resumable coordinator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/internal/signaller"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunActive    = errors.New("scenario already has an active run")
	ErrRunNotActive = errors.New("run is not active")
	ErrInvalidMode  = errors.New("invalid run mode")
)

// startKeyPrefix marks wake requests that start a delayed run; all other
// keys are run ids of resumable runs.
const startKeyPrefix = "start:"

// StatusPublisher receives every status change of every run.
type StatusPublisher interface {
	PublishStatus(metrolib.RunStatus)
}

type Config struct {
	Timing           runner.Timing
	ContinuousPolicy runner.FailurePolicy
	ResumablePolicy  runner.FailurePolicy
	Version          string
	Commit           string
	BuildType        string
}

type Deps struct {
	Env       runner.Env
	Registry  *metrolib.Registry
	Scenarios *scenarios.Store
	// Store persists wake requests across daemon restarts.
	Store scheduler.Store
	// Publisher may be nil.
	Publisher StatusPublisher
	// NewSignaller builds the rig signaller of runs that synchronize.
	// Defaults to a simulated signaller.
	NewSignaller func(edges int) signaller.Signaller
}

type run struct {
	status metrolib.RunStatus
	// pending is set while a delayed start waits for its wake request.
	pending bool
	cancel  context.CancelCauseFunc
	done    chan struct{}
}

func (r *run) active() bool {
	return r.pending || r.status.Running
}

type Api struct {
	cfg          Config
	env          runner.Env
	log          logger.Logger
	parser       *metrolib.Parser
	scenarios    *scenarios.Store
	sched        *scheduler.Scheduler
	resumable    *runner.Resumable
	publisher    StatusPublisher
	newSignaller func(int) signaller.Signaller

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	runs  map[string]*run
	order []string
}

// New starts the wake scheduler over deps.Store. Wake requests persisted
// by a previous daemon are delivered once New returns.
func New(ctx context.Context, cfg Config, deps Deps) (*Api, error) {
	env := deps.Env
	if env.Clock == nil {
		env.Clock = metrolib.SystemClock{}
	}
	if env.Log == nil {
		env.Log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &Api{
		cfg:          cfg,
		env:          env,
		log:          env.Log,
		parser:       metrolib.NewParser(deps.Registry),
		scenarios:    deps.Scenarios,
		publisher:    deps.Publisher,
		newSignaller: deps.NewSignaller,
		ctx:          ctx,
		cancel:       cancel,
		ready:        make(chan struct{}),
		runs:         make(map[string]*run),
	}
	if a.newSignaller == nil {
		a.newSignaller = func(edges int) signaller.Signaller {
			return signaller.NewSimulatedSignaller(env.Log, edges)
		}
	}
	pending, err := deps.Store.Pending()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load wake requests: %w", err)
	}
	resumed := a.restore(pending)
	sched, err := scheduler.New(ctx, deps.Store, a.onWake,
		scheduler.WithLogger(env.Log),
		scheduler.WithPendingHook(env.Metrics.SetPendingWakes))
	if err != nil {
		cancel()
		return nil, err
	}
	a.sched = sched
	a.resumable = runner.NewResumable(ctx, env, a.parser, sched, runner.ResumableConfig{
		Timing:   cfg.Timing,
		Policy:   cfg.ResumablePolicy,
		Listener: a,
	})
	for _, id := range resumed {
		a.resumable.Adopt(id)
	}
	close(a.ready)
	return a, nil
}

// restore rebuilds the runs whose wake requests outlived the previous
// daemon and returns the ids of the resumable ones.
func (a *Api) restore(pending []scheduler.WakeRequest) []string {
	var resumed []string
	for _, req := range pending {
		var r *run
		if id, ok := strings.CutPrefix(req.Key, startKeyPrefix); ok {
			var d delayedRun
			if err := json.Unmarshal(req.Payload, &d); err != nil {
				a.log.Warning("api: unreadable start request %s: %v", id, err)
				continue
			}
			r = &run{pending: true, status: metrolib.RunStatus{
				RunID:       id,
				Scenario:    d.Scenario,
				Mode:        d.Mode,
				LastMessage: "scheduled for " + req.TriggerAt.Format(time.RFC3339),
			}}
		} else {
			rec, err := metrolib.UnmarshalRecord(req.Payload)
			if err != nil {
				a.log.Warning("api: unreadable wake request %s: %v", req.Key, err)
				continue
			}
			r = &run{status: metrolib.RunStatus{
				RunID:             rec.RunID,
				Scenario:          rec.ScenarioID,
				Mode:              common.ModeResumable,
				Running:           true,
				OperationsStarted: true,
				Completed:         rec.OperationIndex,
				Total:             len(rec.OperationLines),
				LastMessage:       "resumed after restart",
			}}
			resumed = append(resumed, rec.RunID)
		}
		a.runs[r.status.RunID] = r
		a.order = append(a.order, r.status.RunID)
		a.log.Info("%s: restored run %s", r.status.Scenario, r.status.RunID)
	}
	return resumed
}

// Close stops signalling of all runs and waits for their goroutines.
// Pending wake requests stay persisted.
func (a *Api) Close() error {
	a.cancel()
	a.wg.Wait()
	a.resumable.Wait()
	<-a.sched.Done()
	return nil
}

func (a *Api) onWake(req scheduler.WakeRequest) {
	<-a.ready
	if id, ok := strings.CutPrefix(req.Key, startKeyPrefix); ok {
		// Starting schedules the first step, which needs the scheduler
		// goroutine this callback runs on.
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.delayedStart(id, req.Payload)
		}()
		return
	}
	a.resumable.HandleWake(req.Payload)
}

// OnStatus records a status snapshot and publishes it.
func (a *Api) OnStatus(s metrolib.RunStatus) {
	a.mu.Lock()
	r, ok := a.runs[s.RunID]
	if !ok {
		r = &run{}
		a.runs[s.RunID] = r
		a.order = append(a.order, s.RunID)
	}
	r.status = s
	r.pending = false
	a.mu.Unlock()
	a.publish(s)
}

func (a *Api) publish(s metrolib.RunStatus) {
	if a.publisher != nil {
		a.publisher.PublishStatus(s)
	}
}

var _ metrolib.StatusListener = (*Api)(nil)

func (a *Api) Version() common.VersionResult {
	return common.VersionResult{
		Version:   a.cfg.Version,
		Commit:    a.cfg.Commit,
		BuildType: a.cfg.BuildType,
	}
}
