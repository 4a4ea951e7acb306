package uploads

import "time"

// UnitID identifies one tracked upload for its whole lifetime
type UnitID string

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition allows only pending -> running -> {completed|failed}.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Metadata is what the caller knows about a file at submission time
type Metadata struct {
	Name      string `json:"name" validate:"required,max=255,no_control"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
	MediaType string `json:"media_type" validate:"required,max=255"`
}

// WorkUnit is one independently tracked upload.
// Progress is 0-100 and never decreases; it is exactly 100 once completed.
type WorkUnit struct {
	ID            UnitID    `json:"id"`
	Name          string    `json:"name"`
	SizeBytes     int64     `json:"size_bytes"`
	MediaType     string    `json:"media_type"`
	Status        Status    `json:"status"`
	Progress      float64   `json:"progress"`
	FailureReason string    `json:"failure_reason,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
}
