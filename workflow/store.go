package workflow

import (
	"context"

	"github.com/Aparnap2/internal-flow-ops/id"
)

// ListOpts controls filtering for run list queries.
type ListOpts struct {
	// Status filters by run status. Empty means all statuses.
	Status RunStatus
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for runs and checkpoints.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns flowops.ErrRunNotFound when
	// absent or expired.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the given options, newest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// SaveCheckpoint persists a checkpoint, assigning its Seq.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// LatestCheckpoint returns the highest-Seq checkpoint for a run.
	// Returns flowops.ErrCheckpointNotFound when the run has none.
	LatestCheckpoint(ctx context.Context, runID id.RunID) (*Checkpoint, error)

	// GetCheckpoint returns the checkpoint with the given Seq.
	GetCheckpoint(ctx context.Context, runID id.RunID, seq int64) (*Checkpoint, error)

	// ListCheckpoints returns all checkpoints for a run ordered by Seq.
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)
}
