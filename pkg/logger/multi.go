package logger

import "errors"

// MultiLogger fans every message out to several backends, typically the
// console and a zap log file.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger writes to each of loggers in order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Info(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Info(format, args...)
	}
}

func (m *MultiLogger) Warning(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Warning(format, args...)
	}
}

func (m *MultiLogger) Error(format string, args ...interface{}) {
	for _, l := range m.loggers {
		l.Error(format, args...)
	}
}

// Close closes every backend and joins their errors.
func (m *MultiLogger) Close() error {
	errs := make([]error, 0, len(m.loggers))
	for _, l := range m.loggers {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

var _ Logger = (*MultiLogger)(nil)
