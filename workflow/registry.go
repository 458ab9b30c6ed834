package workflow

import (
	"fmt"
	"sync"
)

// Registry maps event triggers to graphs. Triggers are keyed
// "{objectType}.{action}" or "{objectType}.{action}.{property}"; resolution
// tries the property-specific key first. Graphs are registered once at
// startup and treated as immutable afterwards.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]*Graph
	byName   map[string]*Graph
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		triggers: make(map[string]*Graph),
		byName:   make(map[string]*Graph),
	}
}

// Register binds a trigger key to a graph. Rebinding a key is a
// configuration mistake and fails.
func (r *Registry) Register(trigger string, g *Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.triggers[trigger]; exists {
		return &ConfigError{Graph: g.Name(), Reason: fmt.Sprintf("trigger %q already bound", trigger)}
	}
	r.triggers[trigger] = g
	r.byName[g.Name()] = g
	return nil
}

// Resolve returns the graph for an event, preferring a property-specific
// binding. found is false when no trigger matches; the event is simply not
// workflow-relevant.
func (r *Registry) Resolve(objectType, action, changedProperty string) (*Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := objectType + "." + action
	if changedProperty != "" {
		if g, ok := r.triggers[base+"."+changedProperty]; ok {
			return g, true
		}
	}
	g, ok := r.triggers[base]
	return g, ok
}

// Graph returns a registered graph by name, for resume paths that only
// know the run record.
func (r *Registry) Graph(name string) (*Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byName[name]
	return g, ok
}

// Triggers returns the bound trigger keys, for startup logging.
func (r *Registry) Triggers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.triggers))
	for k := range r.triggers {
		keys = append(keys, k)
	}
	return keys
}
