package metrolib

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileStampLayout formats the run start in log file names.
const FileStampLayout = "20060102_1504"

var (
	logHeader   = []string{"scenario", "operation", "ts", "te", "debug"}
	traceHeader = []string{"time", "event"}
)

// LogEntry records one executed operation. Times are milliseconds
// relative to the run's TimeReference.
type LogEntry struct {
	Scenario  string
	Operation string
	StartMs   float64
	EndMs     float64
	Debug     string
}

func (e LogEntry) record() []string {
	return []string{e.Scenario, e.Operation, seconds(e.StartMs), seconds(e.EndMs), e.Debug}
}

func seconds(ms float64) string {
	return strconv.FormatFloat(ms/1000, 'f', 6, 64)
}

// LogFileName returns the execution log name for a scenario run.
func LogFileName(scenario string, start time.Time) string {
	return fmt.Sprintf("%s_%s_log.csv", ScenarioBase(scenario), start.Format(FileStampLayout))
}

// TraceFileName returns the trace file name for a scenario run.
func TraceFileName(scenario string, start time.Time) string {
	return fmt.Sprintf("%s_%s_trace.csv", ScenarioBase(scenario), start.Format(FileStampLayout))
}

// ExecutionLog buffers the entries of one run and appends them to a CSV
// file on Sync. Rows already written are not written again.
type ExecutionLog struct {
	mu       sync.Mutex
	scenario string
	start    time.Time
	entries  []LogEntry
	flushed  int
}

// NewExecutionLog returns an empty log for the run of scenario started at start.
func NewExecutionLog(scenario string, start time.Time) *ExecutionLog {
	return &ExecutionLog{scenario: scenario, start: start}
}

// Log appends an entry to the buffer.
func (l *ExecutionLog) Log(e LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy of every entry logged so far.
func (l *ExecutionLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// FileName is the base name of the file Sync writes to.
func (l *ExecutionLog) FileName() string {
	return LogFileName(l.scenario, l.start)
}

// Sync appends unflushed entries to dir/FileName() on fs. The header is
// written when the file is created.
func (l *ExecutionLog) Sync(fs afero.Fs, dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.entries[l.flushed:]
	rows := make([][]string, 0, len(pending))
	for _, e := range pending {
		rows = append(rows, e.record())
	}
	if err := appendCSV(fs, filepath.Join(dir, l.FileName()), logHeader, rows); err != nil {
		return err
	}
	l.flushed = len(l.entries)
	return nil
}

func appendCSV(fs afero.Fs, path string, header []string, rows [][]string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(header); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
