package server

import (
	"context"
	"errors"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/api"
	"github.com/energylab/metronom/internal/scenarios"
	"github.com/energylab/metronom/internal/scheduler"
	"github.com/energylab/metronom/pkg/metrolib"
)

// Custom JSON-RPC error codes for run operations.
const (
	codeNotFound      = jrpc2.Code(-32001)
	codeRunState      = jrpc2.Code(-32002)
	codeInvalidParams = jrpc2.Code(-32602)
)

// Service is the run control surface exposed over JSON-RPC.
type Service interface {
	StartRun(common.StartRunParams) (common.StartRunResult, error)
	StopRun(runID string) error
	Status(runID string) (metrolib.RunStatus, error)
	Runs() []metrolib.RunStatus
	Scenarios() ([]common.ScenarioInfo, error)
	Validate(common.ValidateParams) (common.ValidateResult, error)
	Version() common.VersionResult
}

var _ Service = (*api.Api)(nil)

// RPCServer holds the method table shared by every transport and the
// HTTP bridge built over it.
type RPCServer struct {
	svc      Service
	methods  handler.Map
	bridge   jhttp.Bridge
	notifier *RPCNotifier
}

func NewRPCServer(svc Service, notifier *RPCNotifier) *RPCServer {
	rs := &RPCServer{svc: svc, notifier: notifier}
	rs.methods = handler.Map{
		common.MethodVersion:          handler.New(rs.systemGetVersion),
		common.MethodRunStart:         handler.New(rs.runStart),
		common.MethodRunStop:          handler.New(rs.runStop),
		common.MethodRunStatus:        handler.New(rs.runStatus),
		common.MethodRunList:          handler.New(rs.runList),
		common.MethodScenarioList:     handler.New(rs.scenarioList),
		common.MethodScenarioValidate: handler.New(rs.scenarioValidate),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

// Close releases the HTTP bridge.
func (rs *RPCServer) Close() error {
	return rs.bridge.Close()
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	v := rs.svc.Version()
	return &v, nil
}

func (rs *RPCServer) runStart(_ context.Context, p *common.StartRunParams) (*common.StartRunResult, error) {
	if p.Scenario == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: scenario"}
	}
	res, err := rs.svc.StartRun(*p)
	if err != nil {
		return nil, rpcError(err)
	}
	return &res, nil
}

func (rs *RPCServer) runStop(_ context.Context, p *common.RunIDParams) (*common.EmptyResult, error) {
	if p.RunID == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: runId"}
	}
	if err := rs.svc.StopRun(p.RunID); err != nil {
		return nil, rpcError(err)
	}
	return &common.EmptyResult{}, nil
}

func (rs *RPCServer) runStatus(_ context.Context, p *common.RunIDParams) (*metrolib.RunStatus, error) {
	s, err := rs.svc.Status(p.RunID)
	if err != nil {
		return nil, rpcError(err)
	}
	return &s, nil
}

func (rs *RPCServer) runList(_ context.Context) (*common.ListRunsResult, error) {
	return &common.ListRunsResult{Runs: rs.svc.Runs()}, nil
}

func (rs *RPCServer) scenarioList(_ context.Context) (*common.ListScenariosResult, error) {
	infos, err := rs.svc.Scenarios()
	if err != nil {
		return nil, rpcError(err)
	}
	return &common.ListScenariosResult{Scenarios: infos}, nil
}

func (rs *RPCServer) scenarioValidate(_ context.Context, p *common.ValidateParams) (*common.ValidateResult, error) {
	res, err := rs.svc.Validate(*p)
	if err != nil {
		return nil, rpcError(err)
	}
	return &res, nil
}

// rpcError maps domain errors to JSON-RPC error codes.
func rpcError(err error) error {
	code := jrpc2.Code(0)
	switch {
	case errors.Is(err, api.ErrRunNotFound), errors.Is(err, scenarios.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, api.ErrRunActive), errors.Is(err, api.ErrRunNotActive):
		code = codeRunState
	case errors.Is(err, api.ErrInvalidMode),
		errors.Is(err, api.ErrNothingToValidate),
		errors.Is(err, scenarios.ErrInvalidName),
		errors.Is(err, metrolib.ErrParse),
		errors.Is(err, metrolib.ErrEmptyScenario),
		errors.Is(err, scheduler.ErrInvalidCron),
		errors.Is(err, scheduler.ErrNoOccurrence):
		code = codeInvalidParams
	default:
		return err
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}
