// Package workflow defines the graph execution model: graphs of named
// steps, conditional edges with exhaustive decision routing, durable runs,
// step checkpoints, and the trigger registry that binds incoming events to
// graphs.
//
// Graphs are built once at startup with Builder and compiled with Compile,
// which rejects structural mistakes (missing entry, unknown destinations,
// unrouted decision outcomes) before the first event arrives. Compiled
// graphs are immutable and safe for concurrent runs.
//
// Execution lives in the engine package; persistence behind the Store
// contract, with a KV-backed implementation in kvstore.go.
package workflow
