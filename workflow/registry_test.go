package workflow_test

import (
	"testing"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

func testGraph(t *testing.T, name string) *workflow.Graph {
	t.Helper()
	g, err := workflow.NewBuilder(name).
		Step("only", passStep).
		Entry("only").
		Edge("only", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return g
}

func TestResolvePropertySpecificPrecedence(t *testing.T) {
	r := workflow.NewRegistry()
	generic := testGraph(t, "generic")
	specific := testGraph(t, "specific")

	if err := r.Register("deal.propertyChange", generic); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("deal.propertyChange.amount", specific); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	g, ok := r.Resolve("deal", "propertyChange", "amount")
	if !ok || g.Name() != "specific" {
		t.Errorf("Resolve with amount = %v, want graph %q", g, "specific")
	}

	g, ok = r.Resolve("deal", "propertyChange", "dealname")
	if !ok || g.Name() != "generic" {
		t.Errorf("Resolve with other property = %v, want graph %q", g, "generic")
	}
}

func TestResolveMiss(t *testing.T) {
	r := workflow.NewRegistry()
	if _, ok := r.Resolve("ticket", "creation", ""); ok {
		t.Error("Resolve() on empty registry = ok, want miss")
	}
}

func TestRegisterDuplicateTrigger(t *testing.T) {
	r := workflow.NewRegistry()
	g := testGraph(t, "g")
	if err := r.Register("company.creation", g); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("company.creation", g); err == nil {
		t.Error("second Register() succeeded, want error")
	}
}

func TestGraphByName(t *testing.T) {
	r := workflow.NewRegistry()
	g := testGraph(t, "company-intake")
	if err := r.Register("company.creation", g); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Graph("company-intake")
	if !ok || got.Name() != "company-intake" {
		t.Errorf("Graph() = %v, %v; want the registered graph", got, ok)
	}
	if _, ok := r.Graph("ghost"); ok {
		t.Error("Graph(ghost) = ok, want miss")
	}
}
