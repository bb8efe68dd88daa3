package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes JSON lines through zap. The daemon uses it for its
// persistent log file.
type ZapLogger struct {
	z      *zap.Logger
	s      *zap.SugaredLogger
	closer io.Closer
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z, s: z.Sugar()}
}

// NewFileZapLogger builds a JSON logger appending to the file at path.
// debug lowers the level to Debug.
func NewFileZapLogger(path string, debug bool) (*ZapLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)
	l := NewZapLogger(zap.New(core))
	l.closer = f
	return l, nil
}

func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

func (l *ZapLogger) Warning(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}

func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

// With returns a child logger carrying the given key/value fields.
func (l *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	s := l.s.With(keysAndValues...)
	return &ZapLogger{z: s.Desugar(), s: s}
}

// Close flushes buffered entries and closes the file, if any.
func (l *ZapLogger) Close() error {
	_ = l.z.Sync()
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

var _ Logger = (*ZapLogger)(nil)
