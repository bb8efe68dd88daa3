package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/api"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrolib"
)

const testSecret = "test-rpc-secret"

// fakeService keeps runs in memory. Starting a run publishes its status
// through notifier when set.
type fakeService struct {
	mu       sync.Mutex
	runs     map[string]metrolib.RunStatus
	notifier *RPCNotifier
	startErr error
}

func newFakeService() *fakeService {
	return &fakeService{runs: make(map[string]metrolib.RunStatus)}
}

func (f *fakeService) StartRun(p common.StartRunParams) (common.StartRunResult, error) {
	if f.startErr != nil {
		return common.StartRunResult{}, f.startErr
	}
	f.mu.Lock()
	id := "run-" + p.Scenario
	s := metrolib.RunStatus{RunID: id, Scenario: p.Scenario, Mode: p.Mode, Running: true}
	f.runs[id] = s
	f.mu.Unlock()
	if f.notifier != nil {
		f.notifier.PublishStatus(s)
	}
	return common.StartRunResult{RunID: id}, nil
}

func (f *fakeService) StopRun(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.runs[id]
	if !ok {
		return api.ErrRunNotFound
	}
	if !s.Running {
		return api.ErrRunNotActive
	}
	s.Running = false
	f.runs[id] = s
	return nil
}

func (f *fakeService) Status(id string) (metrolib.RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.runs[id]
	if !ok {
		return metrolib.RunStatus{}, api.ErrRunNotFound
	}
	return s, nil
}

func (f *fakeService) Runs() []metrolib.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]metrolib.RunStatus, 0, len(f.runs))
	for _, s := range f.runs {
		out = append(out, s)
	}
	return out
}

func (f *fakeService) Scenarios() ([]common.ScenarioInfo, error) {
	return []common.ScenarioInfo{{Name: "cpu", Operations: 4}}, nil
}

func (f *fakeService) Validate(p common.ValidateParams) (common.ValidateResult, error) {
	if p.Text == "" {
		return common.ValidateResult{}, api.ErrNothingToValidate
	}
	return common.ValidateResult{Operations: 1, Lines: []string{p.Text}}, nil
}

func (f *fakeService) Version() common.VersionResult {
	return common.VersionResult{Version: "1.0.0", Commit: "abc123"}
}

func newTestWebServer(t *testing.T, svc Service, notifier *RPCNotifier) *WebServer {
	t.Helper()
	rpc := NewRPCServer(svc, notifier)
	t.Cleanup(func() { rpc.Close() })
	return NewWebServer(logger.NewNopLogger(), rpc, testSecret, false, 0, nil)
}

// rpcCall posts a JSON-RPC request and returns the HTTP status and the
// decoded response object.
func rpcCall(t *testing.T, h http.Handler, method string, params any, token string) (int, map[string]any) {
	t.Helper()
	body := map[string]any{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		body["params"] = params
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/jsonrpc", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, raw)
		}
	}
	return rr.Code, out
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", resp)
	}
	return int(e["code"].(float64))
}
