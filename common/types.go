package common

import "github.com/energylab/metronom/pkg/metrolib"

type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

type StartRunParams struct {
	Scenario string `json:"scenario"`
	// Mode is ModeContinuous or ModeResumable. Empty means resumable.
	Mode         string `json:"mode,omitempty"`
	UseSignaller bool   `json:"useSignaller,omitempty"`
	// StartAt delays the run to a wall time in unix milliseconds.
	StartAt int64 `json:"startAt,omitempty"`
	// Cron starts the run at the next occurrence of a cron expression.
	Cron string `json:"cron,omitempty"`
}

type StartRunResult struct {
	RunID   string `json:"runId"`
	StartAt int64  `json:"startAt,omitempty"`
}

type RunIDParams struct {
	RunID string `json:"runId"`
}

type ListRunsResult struct {
	Runs []metrolib.RunStatus `json:"runs"`
}

type ScenarioInfo struct {
	Name       string `json:"name"`
	Operations int    `json:"operations"`
	Error      string `json:"error,omitempty"`
}

type ListScenariosResult struct {
	Scenarios []ScenarioInfo `json:"scenarios"`
}

// ValidateParams names a stored scenario or carries scenario text.
type ValidateParams struct {
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`
}

type ValidateResult struct {
	Operations int      `json:"operations"`
	Lines      []string `json:"lines"`
}

type EmptyResult struct{}
