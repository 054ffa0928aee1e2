package domain

import "time"

// RunStatus is the outcome of a simulation run
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the history record of one simulation run
type Run struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	Status      RunStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Entities    int            `json:"entities"`        // series returned by the service
	Model       string         `json:"model,omitempty"` // canonical JSON that was simulated
	Results     *MergedResults `json:"results,omitempty"`
}

// Duration returns how long the run took
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
