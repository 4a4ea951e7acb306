package analysis

import (
	"fmt"
	"time"
)

// RunID identifies one pipeline run
type RunID string

// RunStatus enum
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunDone      RunStatus = "done"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run can only leave this state through a reset.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunFailed || s == RunCancelled
}

// RunSnapshot is a read-only view of a pipeline run.
// Progress is 100 if and only if Status is RunDone.
type RunSnapshot struct {
	ID                RunID     `json:"id,omitempty"`
	Phases            []string  `json:"phases"`
	CurrentPhaseIndex int       `json:"current_phase_index"`
	CurrentPhase      string    `json:"current_phase,omitempty"`
	Progress          float64   `json:"progress"`
	Status            RunStatus `json:"status"`
	Error             string    `json:"error,omitempty"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
}

// BusyError is returned when a run is requested while another one is active.
type BusyError struct {
	RunID RunID
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("pipeline busy: run %s is still in progress", e.RunID)
}
