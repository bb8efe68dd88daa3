package metrolib

import "sync"

// RunStatus is a point-in-time view of a run for observers.
type RunStatus struct {
	RunID              string `json:"runId"`
	Scenario           string `json:"scenario"`
	Mode               string `json:"mode"`
	Running            bool   `json:"running"`
	Connected          bool   `json:"connected"`
	Syncing            bool   `json:"syncing"`
	Disconnected       bool   `json:"disconnected"`
	Failed             bool   `json:"failed"`
	Finished           bool   `json:"finished"`
	OperationsStarted  bool   `json:"operationsStarted"`
	OperationsFinished bool   `json:"operationsFinished"`
	Completed          int    `json:"completed"`
	Total              int    `json:"total"`
	LastMessage        string `json:"lastMessage"`
}

// StatusListener receives a snapshot after every status change.
type StatusListener interface {
	OnStatus(RunStatus)
}

// StatusFunc adapts a function to StatusListener.
type StatusFunc func(RunStatus)

func (f StatusFunc) OnStatus(s RunStatus) { f(s) }

// StatusTracker owns the live status of one run and notifies a listener
// on every change.
type StatusTracker struct {
	mu       sync.Mutex
	status   RunStatus
	listener StatusListener
}

// NewStatusTracker starts from initial and reports to listener, which may be nil.
func NewStatusTracker(initial RunStatus, listener StatusListener) *StatusTracker {
	return &StatusTracker{status: initial, listener: listener}
}

// Update applies fn to the status and publishes the result.
func (t *StatusTracker) Update(fn func(*RunStatus)) {
	t.mu.Lock()
	fn(&t.status)
	snap := t.status
	t.mu.Unlock()
	if t.listener != nil {
		t.listener.OnStatus(snap)
	}
}

// Message sets LastMessage.
func (t *StatusTracker) Message(msg string) {
	t.Update(func(s *RunStatus) { s.LastMessage = msg })
}

// Snapshot returns the current status.
func (t *StatusTracker) Snapshot() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
