// Package model defines the core data types for relay: workflow runs, stage
// results, branch protections, reviews, and artifacts.
package model

import "time"

// EventKind identifies what kind of repository event triggered a run.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
)

// IsValid reports whether the event kind is one relay understands.
func (k EventKind) IsValid() bool {
	switch k {
	case EventPush, EventPullRequest:
		return true
	}
	return false
}

func (k EventKind) String() string { return string(k) }

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
)

// IsValid reports whether the status is a known run status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunQueued, RunRunning, RunPassed, RunFailed:
		return true
	}
	return false
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunPassed || s == RunFailed
}

func (s RunStatus) String() string { return string(s) }

// WorkflowRun records one execution of a workflow for a commit.
type WorkflowRun struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	Event      EventKind  `json:"event"`
	Branch     string     `json:"branch"`
	CommitSHA  string     `json:"commit_sha"`
	Status     RunStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  string     `json:"created_by,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Stages is populated on reads that join stage results.
	Stages []*StageResult `json:"stages,omitempty"`
}
