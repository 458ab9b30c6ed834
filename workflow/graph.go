package workflow

import (
	"context"
	"fmt"
	"sort"
)

// End is the terminal marker. Routing a step to End completes the run.
const End = "__end__"

// StepFunc executes one named step: it receives the state bag and returns
// the updated bag. Returning an error fails the run; tolerated failures go
// on the errors list instead.
type StepFunc func(ctx context.Context, st State) (State, error)

// Decision is one outcome of a conditional edge. Each graph declares its
// decisions as typed constants and routes every one of them.
type Decision string

// DecideFunc inspects the state bag and picks a Decision.
type DecideFunc func(st State) Decision

// ConfigError marks a structural mistake in a graph: a compile failure or a
// runtime decision with no route. It is a distinct type so configuration
// faults never masquerade as step failures.
type ConfigError struct {
	Graph  string
	Step   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("workflow: graph %q: %s", e.Graph, e.Reason)
	}
	return fmt.Sprintf("workflow: graph %q step %q: %s", e.Graph, e.Step, e.Reason)
}

type conditional struct {
	decide DecideFunc
	routes map[Decision]string
}

// Graph is an immutable, compiled workflow graph. Build one with Builder.
type Graph struct {
	name         string
	entry        string
	steps        map[string]StepFunc
	edges        map[string]string
	conditionals map[string]conditional
	gates        map[string]bool
}

// Name returns the graph's registered name.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry step.
func (g *Graph) Entry() string { return g.entry }

// IsGate reports whether step is an approval gate.
func (g *Graph) IsGate(step string) bool { return g.gates[step] }

// Step returns the function for a named step.
func (g *Graph) Step(name string) (StepFunc, bool) {
	fn, ok := g.steps[name]
	return fn, ok
}

// Next resolves the outgoing edge of step against the state bag. A decision
// outside the declared routes is a ConfigError.
func (g *Graph) Next(step string, st State) (string, error) {
	if dest, ok := g.edges[step]; ok {
		return dest, nil
	}
	cond, ok := g.conditionals[step]
	if !ok {
		return "", &ConfigError{Graph: g.name, Step: step, Reason: "no outgoing edge"}
	}
	d := cond.decide(st)
	dest, ok := cond.routes[d]
	if !ok {
		return "", &ConfigError{Graph: g.name, Step: step, Reason: fmt.Sprintf("decision %q has no route", d)}
	}
	return dest, nil
}

// Builder accumulates a graph definition. Mistakes surface in Compile, not
// at add time, so construction reads linearly.
type Builder struct {
	g    *Graph
	errs []string
}

// NewBuilder starts a graph definition.
func NewBuilder(name string) *Builder {
	return &Builder{g: &Graph{
		name:         name,
		steps:        make(map[string]StepFunc),
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional),
		gates:        make(map[string]bool),
	}}
}

func (b *Builder) addErr(step, reason string) {
	b.errs = append(b.errs, (&ConfigError{Graph: b.g.name, Step: step, Reason: reason}).Error())
}

// Step adds a named step.
func (b *Builder) Step(name string, fn StepFunc) *Builder {
	if name == "" || name == End || name == StartMarker {
		b.addErr(name, "reserved or empty step name")
		return b
	}
	if _, exists := b.g.steps[name]; exists {
		b.addErr(name, "duplicate step")
		return b
	}
	if fn == nil {
		b.addErr(name, "nil step function")
		return b
	}
	b.g.steps[name] = fn
	return b
}

// Gate adds a named step that is also an approval gate: the engine suspends
// the run there until a decision arrives, then executes the step with the
// decision in state.
func (b *Builder) Gate(name string, fn StepFunc) *Builder {
	b.Step(name, fn)
	b.g.gates[name] = true
	return b
}

// Entry sets the entry step.
func (b *Builder) Entry(name string) *Builder {
	b.g.entry = name
	return b
}

// Edge adds an unconditional edge from one step to another (or to End).
func (b *Builder) Edge(from, to string) *Builder {
	if _, dup := b.g.edges[from]; dup {
		b.addErr(from, "multiple unconditional edges")
		return b
	}
	if _, dup := b.g.conditionals[from]; dup {
		b.addErr(from, "step has both unconditional and conditional edges")
		return b
	}
	b.g.edges[from] = to
	return b
}

// Branch adds a conditional edge: decide picks a Decision, routes maps
// every declared outcome to a destination. Compile rejects a routes map
// that misses any outcome or routes an undeclared one.
func (b *Builder) Branch(from string, decide DecideFunc, outcomes []Decision, routes map[Decision]string) *Builder {
	if _, dup := b.g.edges[from]; dup {
		b.addErr(from, "step has both unconditional and conditional edges")
		return b
	}
	if _, dup := b.g.conditionals[from]; dup {
		b.addErr(from, "multiple conditional edges")
		return b
	}
	if decide == nil {
		b.addErr(from, "nil decide function")
		return b
	}

	declared := make(map[Decision]bool, len(outcomes))
	for _, d := range outcomes {
		declared[d] = true
	}
	for _, d := range outcomes {
		if _, ok := routes[d]; !ok {
			b.addErr(from, fmt.Sprintf("outcome %q has no route", d))
		}
	}
	for d := range routes {
		if !declared[d] {
			b.addErr(from, fmt.Sprintf("route for undeclared outcome %q", d))
		}
	}

	b.g.conditionals[from] = conditional{decide: decide, routes: routes}
	return b
}

// Compile validates the definition and returns the immutable graph.
func (b *Builder) Compile() (*Graph, error) {
	g := b.g

	if g.entry == "" {
		b.addErr("", "no entry step")
	} else if _, ok := g.steps[g.entry]; !ok {
		b.addErr("", fmt.Sprintf("entry step %q not defined", g.entry))
	}

	names := make([]string, 0, len(g.steps))
	for name := range g.steps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, hasEdge := g.edges[name]
		_, hasCond := g.conditionals[name]
		if !hasEdge && !hasCond {
			b.addErr(name, "no outgoing edge")
		}
	}
	for from, to := range g.edges {
		b.checkEndpoint(from, to)
	}
	for from, cond := range g.conditionals {
		b.checkEndpoint(from, "")
		for _, to := range cond.routes {
			b.checkEndpoint(from, to)
		}
	}

	if len(b.errs) > 0 {
		sort.Strings(b.errs)
		return nil, &ConfigError{Graph: g.name, Reason: fmt.Sprintf("%d error(s): %s", len(b.errs), b.errs[0])}
	}
	return g, nil
}

// MustCompile is Compile for static startup graphs; it panics on error.
func (b *Builder) MustCompile() *Graph {
	g, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

func (b *Builder) checkEndpoint(from, to string) {
	if _, ok := b.g.steps[from]; !ok {
		b.addErr(from, "edge from undefined step")
	}
	if to == "" || to == End {
		return
	}
	if _, ok := b.g.steps[to]; !ok {
		b.addErr(from, fmt.Sprintf("edge to undefined step %q", to))
	}
}
