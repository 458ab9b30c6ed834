// Package idem provides the idempotency guard: a TTL record per business
// occurrence so redelivered events map onto the run already triggered
// instead of starting a second one.
package idem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

const keyPrefix = "flowops:idempotent:"

// Record is what Commit persists and Check returns for a duplicate.
type Record struct {
	RunID       string          `json:"run_id"`
	Workflow    string          `json:"workflow"`
	Status      string          `json:"status"`
	FinalResult json.RawMessage `json:"final_result,omitempty"`
}

// Option configures the Guard.
type Option func(*Guard)

// WithTTL sets the record lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) { g.ttl = ttl }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// Guard is the idempotency guard over the shared store.
//
// Check and Commit are not atomic. Two replicas racing on the same first
// delivery can both run the workflow; the steps are written to tolerate
// at-least-once execution, so the weaker guarantee is accepted.
type Guard struct {
	store  kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Guard with a 1h default TTL.
func New(store kv.Store, opts ...Option) *Guard {
	g := &Guard{store: store, ttl: 1 * time.Hour, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Check returns the committed record for key, or found=false when the
// occurrence has not been processed within the TTL window.
func (g *Guard) Check(ctx context.Context, key string) (*Record, bool, error) {
	data, err := g.store.Get(ctx, keyPrefix+key)
	if errors.Is(err, flowops.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idem: check %q: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Unreadable record: treat as a miss so the event still processes.
		g.logger.Warn("discarding unreadable idempotency record",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false, nil
	}
	return &rec, true, nil
}

// Commit stores the processing result for key.
func (g *Guard) Commit(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idem: encode record %q: %w", key, err)
	}
	if err := g.store.Set(ctx, keyPrefix+key, data, g.ttl); err != nil {
		return fmt.Errorf("idem: commit %q: %w", key, err)
	}
	return nil
}
