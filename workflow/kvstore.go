package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/id"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

// Key layout on the shared store. Retention is expiry-driven: runs and
// checkpoints are never deleted, they age out.
const (
	runKeyPrefix        = "flowops:run:"
	checkpointKeyPrefix = "flowops:checkpoint:"
	seqKeyPrefix        = "flowops:ckptseq:"
)

func runKey(runID id.RunID) string { return runKeyPrefix + runID.String() }

func checkpointKey(runID id.RunID, seq int64) string {
	return fmt.Sprintf("%s%s:%010d", checkpointKeyPrefix, runID, seq)
}

func checkpointRunPrefix(runID id.RunID) string {
	return checkpointKeyPrefix + runID.String() + ":"
}

// Compile-time interface check.
var _ Store = (*KVStore)(nil)

// KVStoreOption configures a KVStore.
type KVStoreOption func(*KVStore)

// WithRunTTL sets the run record lifetime.
func WithRunTTL(ttl time.Duration) KVStoreOption {
	return func(s *KVStore) { s.runTTL = ttl }
}

// WithCheckpointTTL sets the checkpoint lifetime.
func WithCheckpointTTL(ttl time.Duration) KVStoreOption {
	return func(s *KVStore) { s.checkpointTTL = ttl }
}

// KVStore implements Store on the shared kv contract. Checkpoint sequence
// numbers come from the store's atomic counter, so concurrent writers never
// collide.
type KVStore struct {
	store         kv.Store
	runTTL        time.Duration
	checkpointTTL time.Duration
}

// NewKVStore creates a Store over the given shared store.
func NewKVStore(store kv.Store, opts ...KVStoreOption) *KVStore {
	s := &KVStore{
		store:         store,
		runTTL:        7 * 24 * time.Hour,
		checkpointTTL: 24 * time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateRun persists a new run.
func (s *KVStore) CreateRun(ctx context.Context, run *Run) error {
	return s.putRun(ctx, run)
}

// UpdateRun persists changes to an existing run.
func (s *KVStore) UpdateRun(ctx context.Context, run *Run) error {
	return s.putRun(ctx, run)
}

func (s *KVStore) putRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("workflow: encode run %s: %w", run.ID, err)
	}
	if err := s.store.Set(ctx, runKey(run.ID), data, s.runTTL); err != nil {
		return fmt.Errorf("workflow: store run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *KVStore) GetRun(ctx context.Context, runID id.RunID) (*Run, error) {
	data, err := s.store.Get(ctx, runKey(runID))
	if errors.Is(err, flowops.ErrNotFound) {
		return nil, flowops.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load run %s: %w", runID, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("workflow: decode run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns runs matching opts, newest first.
func (s *KVStore) ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error) {
	keys, err := s.store.Keys(ctx, runKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("workflow: enumerate runs: %w", err)
	}

	runs := make([]*Run, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if errors.Is(err, flowops.ErrNotFound) {
			// Expired between enumeration and load.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("workflow: load %s: %w", key, err)
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("workflow: decode %s: %w", key, err)
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// SaveCheckpoint persists a checkpoint, assigning its Seq from the run's
// atomic counter.
func (s *KVStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	seq, err := s.store.Incr(ctx, seqKeyPrefix+cp.RunID.String())
	if err != nil {
		return fmt.Errorf("workflow: next checkpoint seq for %s: %w", cp.RunID, err)
	}
	if seq == 1 {
		// Counter inherits the run's retention.
		if err := s.store.Expire(ctx, seqKeyPrefix+cp.RunID.String(), s.runTTL); err != nil {
			return fmt.Errorf("workflow: expire seq counter for %s: %w", cp.RunID, err)
		}
	}
	cp.Seq = seq
	if cp.ID.IsNil() {
		cp.ID = id.NewCheckpointID()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("workflow: encode checkpoint %s/%d: %w", cp.RunID, seq, err)
	}
	if err := s.store.Set(ctx, checkpointKey(cp.RunID, seq), data, s.checkpointTTL); err != nil {
		return fmt.Errorf("workflow: store checkpoint %s/%d: %w", cp.RunID, seq, err)
	}
	return nil
}

// GetCheckpoint returns the checkpoint with the given Seq.
func (s *KVStore) GetCheckpoint(ctx context.Context, runID id.RunID, seq int64) (*Checkpoint, error) {
	data, err := s.store.Get(ctx, checkpointKey(runID, seq))
	if errors.Is(err, flowops.ErrNotFound) {
		return nil, flowops.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load checkpoint %s/%d: %w", runID, seq, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("workflow: decode checkpoint %s/%d: %w", runID, seq, err)
	}
	return &cp, nil
}

// ListCheckpoints returns all checkpoints for a run ordered by Seq.
func (s *KVStore) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error) {
	keys, err := s.store.Keys(ctx, checkpointRunPrefix(runID))
	if err != nil {
		return nil, fmt.Errorf("workflow: enumerate checkpoints for %s: %w", runID, err)
	}

	cps := make([]*Checkpoint, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if errors.Is(err, flowops.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("workflow: load %s: %w", key, err)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("workflow: decode %s: %w", key, err)
		}
		cps = append(cps, &cp)
	}

	sort.Slice(cps, func(i, j int) bool { return cps[i].Seq < cps[j].Seq })
	return cps, nil
}

// LatestCheckpoint returns the highest-Seq checkpoint for a run.
func (s *KVStore) LatestCheckpoint(ctx context.Context, runID id.RunID) (*Checkpoint, error) {
	cps, err := s.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, flowops.ErrCheckpointNotFound
	}
	return cps[len(cps)-1], nil
}
