package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// ErrTerminalRun is returned when a transition is attempted on a run that
// already reached COMPLETED or FAILED. Callers log it as a protocol error;
// the stored row is left untouched.
var ErrTerminalRun = errors.New("run is in a terminal state")

// Run is one end-to-end execution of the analysis pipeline for a dataset.
// The pipeline executor is the only writer of a Run's mutable fields after
// submission.
type Run struct {
	ID           string
	ProjectID    string
	DatasetID    string
	Status       RunStatus
	CurrentTask  string
	Progress     float64
	Params       Metadata
	ScoreSummary Metadata
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(r.DatasetID) == "" {
		return errors.New("dataset id is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid run status")
	}
	if r.Progress < 0 || r.Progress > 1 {
		return errors.New("progress must be within [0,1]")
	}
	return nil
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status mutation is legal.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// NormalizeRunStatus maps free-form status values to canonical run statuses.
func NormalizeRunStatus(value string) RunStatus {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RunStatusPending):
		return RunStatusPending
	case string(RunStatusRunning):
		return RunStatusRunning
	case string(RunStatusCompleted):
		return RunStatusCompleted
	case string(RunStatusFailed):
		return RunStatusFailed
	default:
		return ""
	}
}

// CanTransitionRunStatus enforces the run state machine:
// PENDING -> RUNNING -> {COMPLETED, FAILED}. Terminal states admit nothing,
// not even self-transitions.
func CanTransitionRunStatus(current, next RunStatus) bool {
	switch current {
	case RunStatusPending:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	default:
		return false
	}
}
