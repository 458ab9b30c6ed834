// Package backlog provides the durable event backlog: every incoming
// envelope is pushed here regardless of how its immediate processing went,
// so a worker can drain and replay deliveries later. The idempotency guard
// collapses replays of already-processed occurrences.
package backlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aparnap2/internal-flow-ops/envelope"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

const queuePrefix = "flowops:queue:"

// DefaultName is the backlog queue the ingestion layer uses unless
// configured otherwise.
const DefaultName = "event_backlog"

// Queue is a FIFO queue of envelopes over the shared store.
type Queue struct {
	store kv.Store
	key   string
}

// New creates a Queue with the given name. An empty name selects
// DefaultName.
func New(store kv.Store, name string) *Queue {
	if name == "" {
		name = DefaultName
	}
	return &Queue{store: store, key: queuePrefix + name}
}

// Push appends an envelope to the backlog and returns the new depth.
func (q *Queue) Push(ctx context.Context, env *envelope.Envelope) (int64, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("backlog: encode envelope %s: %w", env.EventID, err)
	}
	n, err := q.store.Push(ctx, q.key, data)
	if err != nil {
		return 0, fmt.Errorf("backlog: push envelope %s: %w", env.EventID, err)
	}
	return n, nil
}

// Pop removes and returns the oldest envelope. Returns
// flowops.ErrQueueEmpty when the backlog is drained.
func (q *Queue) Pop(ctx context.Context) (*envelope.Envelope, error) {
	data, err := q.store.Pop(ctx, q.key)
	if err != nil {
		return nil, err
	}

	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("backlog: decode envelope: %w", err)
	}
	return &env, nil
}

// Size returns the current backlog depth.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.store.QueueLen(ctx, q.key)
}
