package workflow

import (
	"encoding/json"
	"time"

	"github.com/Aparnap2/internal-flow-ops/id"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	// RunStatusPending means the run is created but not yet executing.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning means the run is currently executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusWaitingApproval means the run is suspended at an approval
	// gate until a decision arrives.
	RunStatusWaitingApproval RunStatus = "waiting_approval"
	// RunStatusCompleted means the run reached the terminal marker.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed means a step failed or the graph was misconfigured.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled means the run was cancelled between steps.
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run represents a single execution of a graph.
type Run struct {
	ID            id.RunID  `json:"id"`
	Graph         string    `json:"graph"`
	Status        RunStatus `json:"status"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// PendingStep is the approval gate the run is suspended at, set only
	// while Status is waiting_approval.
	PendingStep string `json:"pending_step,omitempty"`

	// Error is the failure that terminated the run.
	Error string `json:"error,omitempty"`

	// Errors is the append-only list of tolerated step-level failures,
	// copied from state when the run reaches a terminal status.
	Errors []string `json:"errors,omitempty"`

	// FinalResult is the finalization summary, when the path produced one.
	FinalResult json.RawMessage `json:"final_result,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
