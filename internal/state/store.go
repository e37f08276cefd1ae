// Package state records trainer launches in a SQLite database so that
// experiment progress survives the process.
package state

import (
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunSpec identifies one trainer launch within an experiment.
type RunSpec struct {
	Experiment string
	Seed       int64
	Variant    string // "reference" or a modifier name
	Repetition int
	GridIndex  int
	Params     map[string]string
	OutputPath string
}

// Run is a recorded trainer launch.
type Run struct {
	RunSpec
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Experiment string // Empty matches all experiments
	Limit      int    // Zero or negative means no limit
}
