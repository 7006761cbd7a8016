package stores

import (
	"time"
)

// RunRecord is one persisted run of the engine.
type RunRecord struct {
	ID            string     `json:"id"`
	PlanID        string     `json:"plan_id"`
	ConfigPath    string     `json:"config_path"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Applied       int        `json:"applied"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	FatalResource *string    `json:"fatal_resource,omitempty"`
	Flags         string     `json:"flags"` // JSON array of advisory flags
	CreatedAt     time.Time  `json:"created_at"`
}

// OutcomeRecord is one persisted step outcome belonging to a run.
type OutcomeRecord struct {
	RunID       string     `json:"run_id"`
	ResourceID  string     `json:"resource_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
