// Package logger provides the logging interface shared by metronom
// components, with console, zap and Windows Event Log backends.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logger is the printf-style logging interface every component receives.
type Logger interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	// Close releases resources held by the backend. Safe to call more than once.
	Close() error
}

// StandardLogger wraps a stdlib *log.Logger.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger creates a logger that writes through l.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards all messages.
type NopLogger struct{}

func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Info(format string, args ...interface{})    {}
func (n *NopLogger) Warning(format string, args ...interface{}) {}
func (n *NopLogger) Error(format string, args ...interface{})   {}
func (n *NopLogger) Close() error                               { return nil }

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger records formatted messages for assertions in tests. It is
// safe for concurrent use.
type MockLogger struct {
	mu           sync.Mutex
	InfoCalls    []string
	WarningCalls []string
	ErrorCalls   []string
	CloseCalled  bool
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.mu.Lock()
	m.InfoCalls = append(m.InfoCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.mu.Lock()
	m.WarningCalls = append(m.WarningCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.mu.Lock()
	m.ErrorCalls = append(m.ErrorCalls, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.CloseCalled = true
	m.mu.Unlock()
	return nil
}

// Errors returns a copy of the recorded error messages.
func (m *MockLogger) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ErrorCalls...)
}

// Contains reports whether any recorded message contains substr.
func (m *MockLogger) Contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, calls := range [][]string{m.InfoCalls, m.WarningCalls, m.ErrorCalls} {
		for _, c := range calls {
			if strings.Contains(c, substr) {
				return true
			}
		}
	}
	return false
}

var _ Logger = (*MockLogger)(nil)

// stdWriter adapts a Logger to io.Writer at info level.
type stdWriter struct {
	l Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// ToStdLogger returns a *log.Logger whose output goes to l.Info. Used by
// libraries that only accept the stdlib type, such as http.Server.
func ToStdLogger(l Logger) *log.Logger {
	return log.New(stdWriter{l: l}, "", 0)
}
