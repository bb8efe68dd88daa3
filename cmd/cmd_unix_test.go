//go:build !windows

package cmd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/api"
	"github.com/energylab/metronom/internal/server"
	"github.com/energylab/metronom/pkg/logger"
	"github.com/energylab/metronom/pkg/metrocli"
	"github.com/energylab/metronom/pkg/metrolib"
)

// fakeDaemon answers control requests with canned runs.
type fakeDaemon struct {
	mu       sync.Mutex
	notifier *server.RPCNotifier
	started  []common.StartRunParams
	stopped  []string
}

func (d *fakeDaemon) StartRun(p common.StartRunParams) (common.StartRunResult, error) {
	d.mu.Lock()
	d.started = append(d.started, p)
	d.mu.Unlock()
	if p.StartAt != 0 {
		return common.StartRunResult{RunID: "r1", StartAt: p.StartAt}, nil
	}
	go func() {
		deadline := time.Now().Add(time.Second)
		for d.notifier.Count() == 0 && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		d.notifier.PublishStatus(metrolib.RunStatus{RunID: "r1", Scenario: p.Scenario, Running: true, Total: 2})
		d.notifier.PublishStatus(metrolib.RunStatus{RunID: "r1", Scenario: p.Scenario, Running: true, Completed: 1, Total: 2})
	}()
	return common.StartRunResult{RunID: "r1"}, nil
}

func (d *fakeDaemon) StopRun(id string) error {
	if id != "r1" {
		return api.ErrRunNotFound
	}
	d.mu.Lock()
	d.stopped = append(d.stopped, id)
	d.mu.Unlock()
	return nil
}

// Status reports the run as finished so followers end even when the
// pushes race the subscription.
func (d *fakeDaemon) Status(id string) (metrolib.RunStatus, error) {
	if id != "r1" {
		return metrolib.RunStatus{}, api.ErrRunNotFound
	}
	return metrolib.RunStatus{RunID: "r1", Scenario: "cpu", Mode: common.ModeResumable,
		Completed: 2, Total: 2, OperationsFinished: true, Finished: true, LastMessage: "finished operations"}, nil
}

func (d *fakeDaemon) Runs() []metrolib.RunStatus {
	return []metrolib.RunStatus{
		{RunID: "r1", Scenario: "cpu", Running: true, Completed: 1, Total: 2},
		{RunID: "r2", Scenario: "net", LastMessage: "scheduled for 2026-03-01T03:00:00Z"},
	}
}

func (d *fakeDaemon) Scenarios() ([]common.ScenarioInfo, error) {
	return []common.ScenarioInfo{
		{Name: "cpu", Operations: 12},
		{Name: "broken", Error: "line 2: unknown operation type"},
	}, nil
}

func (d *fakeDaemon) Validate(p common.ValidateParams) (common.ValidateResult, error) {
	return common.ValidateResult{Operations: 1, Lines: []string{p.Text}}, nil
}

func (d *fakeDaemon) Version() common.VersionResult {
	return common.VersionResult{Version: "test"}
}

// startFakeDaemon serves d on a unix socket and points the commands at it.
func startFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "mtd")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")
	t.Setenv(common.SocketPathEnv, sock)
	t.Setenv(metrocli.VersionCheckEnv, "1")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	notifier := server.NewRPCNotifier(nil)
	d := &fakeDaemon{notifier: notifier}
	srv := server.NewServer(logger.NewNopLogger(), d, notifier, server.Config{TCPPort: port - 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if c, err := net.Dial("unix", sock); err == nil {
			c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	oldURI := daemonURI
	daemonURI = "unix://" + sock
	t.Cleanup(func() { daemonURI = oldURI })
	return d
}

func resetStartFlags(t *testing.T) {
	t.Helper()
	runMode, startAt, startIn, startCron = common.ModeResumable, "", "", ""
	useSignaller, followRun = false, false
	t.Cleanup(func() {
		runMode, startAt, startIn, startCron = "", "", "", ""
		useSignaller, followRun = false, false
	})
}

func TestStart(t *testing.T) {
	d := startFakeDaemon(t)
	resetStartFlags(t)
	useSignaller = true

	out, _ := captureOutput(func() {
		if err := start(newContext(testApp(), []string{"cpu"}, "start")); err != nil {
			t.Errorf("start: %v", err)
		}
	})
	assertContains(t, out, "Run r1 of cpu started.")
	assertNotContains(t, out, "Completed")

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.started) != 1 {
		t.Fatalf("started = %+v", d.started)
	}
	p := d.started[0]
	if p.Scenario != "cpu" || p.Mode != common.ModeResumable || !p.UseSignaller || p.StartAt != 0 {
		t.Fatalf("params = %+v", p)
	}
}

func TestStart_Scheduled(t *testing.T) {
	startFakeDaemon(t)
	resetStartFlags(t)
	startIn = "2h"
	followRun = true

	out, _ := captureOutput(func() {
		_ = start(newContext(testApp(), []string{"cpu"}, "start"))
	})
	assertContains(t, out, "Run r1 of cpu scheduled for ")
	assertNotContains(t, out, "Completed")
}

func TestStart_Follow(t *testing.T) {
	startFakeDaemon(t)
	resetStartFlags(t)
	followRun = true

	done := make(chan struct{})
	var out string
	go func() {
		defer close(done)
		out, _ = captureOutput(func() {
			_ = start(newContext(testApp(), []string{"cpu"}, "start"))
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("start --follow did not return")
	}
	assertContainsAll(t, out, []string{"Run r1 of cpu started.", "Completed 2/2 operations."})
}

func TestStart_InvalidMode(t *testing.T) {
	resetStartFlags(t)
	runMode = "burst"
	out, _ := captureOutput(func() {
		_ = start(newContext(testApp(), []string{"cpu"}, "start"))
	})
	assertContains(t, out, `metronom: unknown mode "burst"`)
	assertNotContains(t, out, "started")
}

func TestStop(t *testing.T) {
	d := startFakeDaemon(t)

	out, _ := captureOutput(func() {
		_ = stop(newContext(testApp(), []string{"r1"}, "stop"))
	})
	assertContains(t, out, "Run r1 stopped.")

	out, _ = captureOutput(func() {
		_ = stop(newContext(testApp(), []string{"nope"}, "stop"))
	})
	assertErrorFormat(t, out, "stop", "stop_run")

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stopped) != 1 {
		t.Fatalf("stopped = %v", d.stopped)
	}
}

func TestStatus(t *testing.T) {
	startFakeDaemon(t)

	out, _ := captureOutput(func() {
		_ = status(newContext(testApp(), nil, "status"))
	})
	assertContainsAll(t, out, []string{"r1", "r2", "running", "scheduled", "1/2"})

	out, _ = captureOutput(func() {
		_ = status(newContext(testApp(), []string{"r1"}, "status"))
	})
	assertContainsAll(t, out, []string{"Scenario\t: cpu", "State\t\t: finished", "Operations\t: 2/2"})

	out, _ = captureOutput(func() {
		_ = status(newContext(testApp(), []string{"missing"}, "status"))
	})
	assertErrorFormat(t, out, "status", "get_status")
}

func TestListScenarios(t *testing.T) {
	startFakeDaemon(t)
	out, _ := captureOutput(func() {
		_ = listScenarios(newContext(testApp(), nil, "scenarios"))
	})
	assertContainsAll(t, out, []string{"12 operations", "invalid: line 2: unknown operation type"})
	assertLineCount(t, out, 2)
}
