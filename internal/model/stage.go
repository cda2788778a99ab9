package model

import "time"

// StageOutcome is the result state of one stage within a run. A finished
// stage outcome doubles as the status check for the merge gate.
type StageOutcome string

const (
	StagePending StageOutcome = "pending"
	StageRunning StageOutcome = "running"
	StageSuccess StageOutcome = "success"
	StageFailure StageOutcome = "failure"
	StageSkipped StageOutcome = "skipped"
)

// IsValid reports whether the outcome is a known stage outcome.
func (o StageOutcome) IsValid() bool {
	switch o {
	case StagePending, StageRunning, StageSuccess, StageFailure, StageSkipped:
		return true
	}
	return false
}

func (o StageOutcome) String() string { return string(o) }

// StageResult records the outcome of one stage of a workflow run.
type StageResult struct {
	RunID      string       `json:"run_id"`
	Name       string       `json:"name"`
	Outcome    StageOutcome `json:"outcome"`
	LogRef     string       `json:"log_ref,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
