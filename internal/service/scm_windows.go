//go:build windows

package service

import (
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// scm adapts the x/sys service manager to SCManager.
type scm struct{ m *mgr.Mgr }

// scmService adapts *mgr.Service to Service.
type scmService struct{ s *mgr.Service }

// OpenSCManager connects to the Service Control Manager. Close the
// result when done.
func OpenSCManager() (SCManager, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect to service control manager: %w", err)
	}
	return scm{m: m}, nil
}

func (c scm) OpenService(name string) (Service, error) {
	s, err := c.m.OpenService(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return scmService{s: s}, nil
}

// CreateService registers exePath to run "metronom daemon" as an own
// process service.
func (c scm) CreateService(name, exePath string, cfg ServiceConfig) (Service, error) {
	if s, err := c.m.OpenService(name); err == nil {
		s.Close()
		return nil, ErrServiceExists
	}
	s, err := c.m.CreateService(name, exePath, mgr.Config{
		DisplayName:  cfg.DisplayName,
		Description:  cfg.Description,
		StartType:    cfg.StartType,
		ServiceType:  windows.SERVICE_WIN32_OWN_PROCESS,
		ErrorControl: windows.SERVICE_ERROR_NORMAL,
	}, "daemon")
	if err != nil {
		return nil, fmt.Errorf("create service %s: %w", name, err)
	}
	return scmService{s: s}, nil
}

func (c scm) Close() error { return c.m.Disconnect() }

func (s scmService) Start() error {
	return wrap("start", s.s.Start())
}

func (s scmService) Stop() error {
	_, err := s.s.Control(svc.Stop)
	return wrap("stop", err)
}

func (s scmService) Delete() error {
	return wrap("delete", s.s.Delete())
}

func (s scmService) Status() (ServiceStatus, error) {
	st, err := s.s.Query()
	if err != nil {
		return 0, wrap("query", err)
	}
	return ServiceStatus(st.State), nil
}

func (s scmService) Close() error { return s.s.Close() }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s service: %w", op, err)
}
