//go:build windows

package service

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/svc/eventlog"
)

var (
	ErrServiceExists         = errors.New("service already exists")
	ErrServiceNotFound       = errors.New("service not found")
	ErrServiceAlreadyRunning = errors.New("service is already running")
	ErrServiceNotRunning     = errors.New("service is not running")
)

// SERVICE_START_TYPE values.
const (
	StartTypeAutomatic uint32 = 2
	StartTypeManual    uint32 = 3
	StartTypeDisabled  uint32 = 4
)

// ServiceStatus mirrors SERVICE_STATUS dwCurrentState.
type ServiceStatus uint32

const (
	StatusStopped         ServiceStatus = 1
	StatusStartPending    ServiceStatus = 2
	StatusStopPending     ServiceStatus = 3
	StatusRunning         ServiceStatus = 4
	StatusContinuePending ServiceStatus = 5
	StatusPausePending    ServiceStatus = 6
	StatusPaused          ServiceStatus = 7
)

func (s ServiceStatus) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusStartPending:
		return "Start Pending"
	case StatusStopPending:
		return "Stop Pending"
	case StatusRunning:
		return "Running"
	case StatusContinuePending:
		return "Continue Pending"
	case StatusPausePending:
		return "Pause Pending"
	case StatusPaused:
		return "Paused"
	default:
		return fmt.Sprintf("Unknown (%d)", s)
	}
}

type ServiceConfig struct {
	DisplayName string
	StartType   uint32
	Description string
}

// SCManager is the slice of the Service Control Manager used here.
type SCManager interface {
	OpenService(name string) (Service, error)
	CreateService(name, exePath string, config ServiceConfig) (Service, error)
	Close() error
}

type Service interface {
	Start() error
	Stop() error
	Delete() error
	Status() (ServiceStatus, error)
	Close() error
}

// ServiceManager installs, removes and controls the daemon service.
type ServiceManager struct {
	scm SCManager
}

func NewServiceManager(scm SCManager) *ServiceManager {
	return &ServiceManager{scm: scm}
}

// Install registers the service running "exePath daemon" and its
// Event Log source.
func (m *ServiceManager) Install(serviceName, displayName, exePath string, startType uint32) error {
	s, err := m.scm.CreateService(serviceName, exePath, ServiceConfig{
		DisplayName: displayName,
		StartType:   startType,
		Description: "Schedules energy-measurement scenarios.",
	})
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}
	_ = eventlog.InstallAsEventCreate(serviceName, eventlog.Error|eventlog.Warning|eventlog.Info)
	return nil
}

// Uninstall stops the service if it runs, deletes it and removes its
// Event Log source.
func (m *ServiceManager) Uninstall(serviceName string) error {
	s, err := m.scm.OpenService(serviceName)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := m.stopIfRunning(s); err != nil {
		return err
	}
	if err := s.Delete(); err != nil {
		return err
	}
	_ = eventlog.Remove(serviceName)
	return nil
}

func (m *ServiceManager) stopIfRunning(s Service) error {
	status, err := s.Status()
	if err != nil {
		return err
	}

	if status == StatusRunning {
		return s.Stop()
	}

	return nil
}

func (m *ServiceManager) Start(serviceName string) error {
	s, err := m.scm.OpenService(serviceName)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.Status()
	if err != nil {
		return err
	}

	if status == StatusRunning {
		return ErrServiceAlreadyRunning
	}

	return s.Start()
}

func (m *ServiceManager) Stop(serviceName string) error {
	s, err := m.scm.OpenService(serviceName)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.Status()
	if err != nil {
		return err
	}

	if status == StatusStopped {
		return ErrServiceNotRunning
	}

	return s.Stop()
}

func (m *ServiceManager) Status(serviceName string) (ServiceStatus, error) {
	s, err := m.scm.OpenService(serviceName)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	return s.Status()
}
