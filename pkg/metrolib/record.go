package metrolib

import (
	"encoding/json"
	"fmt"
)

// RecordVersion is the ResumptionRecord schema written by this package.
const RecordVersion = 1

// ResumptionRecord is the whole state a resumable run needs to execute
// its next step. Records are immutable; Next returns the successor.
type ResumptionRecord struct {
	Version            int      `json:"version"`
	RunID              string   `json:"runId"`
	TimeRefMs          float64  `json:"timeRefMs"`
	ScheduledTimeMs    float64  `json:"scheduledTimeMs"`
	OperationIndex     int      `json:"operationIndex"`
	OperationLines     []string `json:"operationLines"`
	ScenarioID         string   `json:"scenarioId"`
	ExecutionStartTime int64    `json:"executionStartTimeMs"`
}

// Validate checks the structural invariants of the record.
func (r ResumptionRecord) Validate() error {
	if r.Version != RecordVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}
	if len(r.OperationLines) == 0 {
		return fmt.Errorf("%w: no operation lines", ErrInvalidRecord)
	}
	if r.OperationIndex < 0 || r.OperationIndex >= len(r.OperationLines) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidRecord, r.OperationIndex, len(r.OperationLines))
	}
	if r.ScenarioID == "" {
		return fmt.Errorf("%w: missing scenario id", ErrInvalidRecord)
	}
	if r.ExecutionStartTime <= 0 {
		return fmt.Errorf("%w: execution start time must be positive", ErrInvalidRecord)
	}
	return nil
}

// CurrentLine is the line to execute at this step.
func (r ResumptionRecord) CurrentLine() string {
	return r.OperationLines[r.OperationIndex]
}

// IsLast reports whether the current step is the final one.
func (r ResumptionRecord) IsLast() bool {
	return r.OperationIndex == len(r.OperationLines)-1
}

// NextLine is the line of the following step. It must not be called on
// the last step.
func (r ResumptionRecord) NextLine() string {
	return r.OperationLines[r.OperationIndex+1]
}

// Next returns the record of the following step scheduled at scheduledMs.
func (r ResumptionRecord) Next(scheduledMs float64) ResumptionRecord {
	n := r
	n.OperationIndex++
	n.ScheduledTimeMs = scheduledMs
	return n
}

// TimeReference rebuilds the run's time reference on clock.
func (r ResumptionRecord) TimeReference(clock Clock) TimeReference {
	return RestoreTimeReference(clock, r.TimeRefMs, r.ExecutionStartTime)
}

// Marshal encodes the record as the payload of a wake request.
func (r ResumptionRecord) Marshal() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// UnmarshalRecord decodes and validates a wake request payload.
func UnmarshalRecord(b []byte) (ResumptionRecord, error) {
	var r ResumptionRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return ResumptionRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := r.Validate(); err != nil {
		return ResumptionRecord{}, err
	}
	return r, nil
}
