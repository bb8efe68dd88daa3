package common

import "time"

const (
	// TCPHost is the loopback address the daemon binds for TCP fallback.
	TCPHost = "127.0.0.1"

	// DefaultTCPPort is the control port when no socket or pipe is usable.
	DefaultTCPPort = 3859

	// DefaultDialTimeout bounds connection attempts to the daemon.
	DefaultDialTimeout = 5 * time.Second
)

// JSON-RPC method names served by the daemon.
const (
	MethodVersion          = "system.getVersion"
	MethodRunStart         = "run.start"
	MethodRunStop          = "run.stop"
	MethodRunStatus        = "run.status"
	MethodRunList          = "run.list"
	MethodScenarioList     = "scenario.list"
	MethodScenarioValidate = "scenario.validate"

	// NotifyRunStatus is pushed to websocket clients on every status change.
	NotifyRunStatus = "run.status"
)

// Run modes.
const (
	ModeContinuous = "continuous"
	ModeResumable  = "resumable"
)
