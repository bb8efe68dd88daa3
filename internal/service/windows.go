//go:build windows

// Package service runs the metronom daemon under the Windows Service
// Control Manager and installs or removes it as a service.
package service

import (
	"context"
	"time"

	"github.com/energylab/metronom/pkg/logger"
	"golang.org/x/sys/windows/svc"
)

// DefaultServiceName is the SCM and Event Log source name.
const DefaultServiceName = "metronom"

const acceptedCommands = svc.AcceptStop | svc.AcceptShutdown

// startupWindow is how long Execute waits for an immediate start failure
// before reporting Running.
const startupWindow = 50 * time.Millisecond

// Runner is the part of daemon.Runner the handler drives.
type Runner interface {
	Start(ctx context.Context) error
	Shutdown() error
	IsRunning() bool
}

// WindowsHandler implements svc.Handler on top of a daemon runner.
type WindowsHandler struct {
	runner Runner
	log    logger.Logger
}

func NewWindowsHandler(runner Runner, l logger.Logger) *WindowsHandler {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &WindowsHandler{runner: runner, log: l}
}

// Execute follows StartPending -> Running -> StopPending -> Stopped.
// Service start arguments are ignored; configuration comes from the
// config directory.
func (h *WindowsHandler) Execute(_ []string, requests <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	status <- svc.Status{State: svc.StartPending}
	h.log.Info("service: starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startErr := make(chan error, 1)
	go func() {
		startErr <- h.runner.Start(ctx)
	}()

	select {
	case err := <-startErr:
		if err != nil {
			h.log.Error("service: start: %v", err)
			status <- svc.Status{State: svc.Stopped}
			return false, 1
		}
	case <-time.After(startupWindow):
	}

	status <- svc.Status{State: svc.Running, Accepts: acceptedCommands}
	h.log.Info("service: running")

	for req := range requests {
		switch req.Cmd {
		case svc.Interrogate:
			status <- req.CurrentStatus
		case svc.Stop, svc.Shutdown:
			return h.stop(status, cancel)
		}
	}
	return false, 0
}

func (h *WindowsHandler) stop(status chan<- svc.Status, cancel context.CancelFunc) (bool, uint32) {
	h.log.Info("service: stopping")
	status <- svc.Status{State: svc.StopPending}
	cancel()
	if err := h.runner.Shutdown(); err != nil {
		h.log.Error("service: shutdown: %v", err)
		status <- svc.Status{State: svc.Stopped}
		return false, 1
	}
	h.log.Info("service: stopped")
	status <- svc.Status{State: svc.Stopped}
	return false, 0
}
