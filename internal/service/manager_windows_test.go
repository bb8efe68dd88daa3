//go:build windows

package service

import (
	"errors"
	"testing"
)

type fakeService struct {
	status  ServiceStatus
	started bool
	stopped bool
	deleted bool
}

func (f *fakeService) Start() error                   { f.started = true; return nil }
func (f *fakeService) Stop() error                    { f.stopped = true; return nil }
func (f *fakeService) Delete() error                  { f.deleted = true; return nil }
func (f *fakeService) Status() (ServiceStatus, error) { return f.status, nil }
func (f *fakeService) Close() error                   { return nil }

type fakeSCM struct {
	services map[string]*fakeService
	exePath  string
}

func (m *fakeSCM) OpenService(name string) (Service, error) {
	s, ok := m.services[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return s, nil
}

func (m *fakeSCM) CreateService(name, exePath string, _ ServiceConfig) (Service, error) {
	if _, ok := m.services[name]; ok {
		return nil, ErrServiceExists
	}
	m.exePath = exePath
	s := &fakeService{status: StatusStopped}
	m.services[name] = s
	return s, nil
}

func (m *fakeSCM) Close() error { return nil }

func TestServiceManager_Lifecycle(t *testing.T) {
	scm := &fakeSCM{services: map[string]*fakeService{}}
	m := NewServiceManager(scm)

	if err := m.Install(DefaultServiceName, "Metronom", `C:\metronom.exe`, StartTypeAutomatic); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := m.Install(DefaultServiceName, "Metronom", `C:\metronom.exe`, StartTypeAutomatic); !errors.Is(err, ErrServiceExists) {
		t.Fatalf("second Install = %v", err)
	}
	if err := m.Stop(DefaultServiceName); !errors.Is(err, ErrServiceNotRunning) {
		t.Fatalf("Stop stopped = %v", err)
	}
	if err := m.Start(DefaultServiceName); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := scm.services[DefaultServiceName]
	s.status = StatusRunning
	if err := m.Start(DefaultServiceName); !errors.Is(err, ErrServiceAlreadyRunning) {
		t.Fatalf("Start running = %v", err)
	}
	if st, _ := m.Status(DefaultServiceName); st.String() != "Running" {
		t.Fatalf("Status = %s", st)
	}
	if err := m.Uninstall(DefaultServiceName); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if !s.stopped || !s.deleted {
		t.Fatalf("service = %+v", s)
	}
	if _, err := m.Status("missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("Status missing = %v", err)
	}
}
