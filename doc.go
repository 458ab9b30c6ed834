// Package flowops provides a webhook-driven workflow orchestration service
// for CRM business events. Raw events arrive in batches, are normalized into
// deterministic envelopes, deduplicated through a TTL idempotency guard,
// matched against a trigger registry, and executed as checkpointed graphs.
//
// Graph runs are durable: every step persists a checkpoint, so a crashed run
// resumes from its last completed step, and approval gates suspend a run
// until an explicit decision arrives.
//
// # Architecture
//
// Each subsystem defines its own narrow contract. The kv package is the
// shared store primitive (TTL keys, atomic counters, list queues); the
// workflow store, idempotency guard, and event backlog are all built on it,
// with Redis and in-memory backends.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package flowops
