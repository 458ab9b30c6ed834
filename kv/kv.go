// Package kv defines the shared store contract every durable subsystem is
// built on: TTL key-value pairs, atomic counters, list-backed queues, and
// key enumeration by prefix.
//
// The workflow store, the idempotency guard, and the event backlog all sit
// on top of this interface, so swapping Redis for the in-memory backend
// swaps the whole persistence layer at once.
package kv

import (
	"context"
	"time"
)

// Store is the shared key-value store contract.
//
// Get returns flowops.ErrNotFound for absent keys; Pop returns
// flowops.ErrQueueEmpty for empty queues.
type Store interface {
	// Get returns the value stored at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Push appends value to the tail of the named queue and returns the
	// new queue length.
	Push(ctx context.Context, queue string, value []byte) (int64, error)

	// Pop removes and returns the value at the head of the named queue.
	Pop(ctx context.Context, queue string) ([]byte, error)

	// QueueLen returns the number of entries in the named queue.
	QueueLen(ctx context.Context, queue string) (int64, error)

	// Keys returns all keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
