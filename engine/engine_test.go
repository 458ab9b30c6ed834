package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/engine"
	"github.com/Aparnap2/internal-flow-ops/kv/memory"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, graphs ...*workflow.Graph) (*engine.Engine, *workflow.KVStore) {
	t.Helper()
	reg := workflow.NewRegistry()
	for i, g := range graphs {
		if err := reg.Register(fmt.Sprintf("trigger.%d", i), g); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	store := workflow.NewKVStore(memory.New())
	eng := engine.New(reg, store, engine.WithLogger(discardLogger()))
	return eng, store
}

func recordStep(name string, trail *[]string) workflow.StepFunc {
	return func(_ context.Context, st workflow.State) (workflow.State, error) {
		*trail = append(*trail, name)
		st[name+"_done"] = true
		return st, nil
	}
}

func linearGraph(t *testing.T, trail *[]string) *workflow.Graph {
	t.Helper()
	g, err := workflow.NewBuilder("linear").
		Step("first", recordStep("first", trail)).
		Step("second", recordStep("second", trail)).
		Step("finalize", func(_ context.Context, st workflow.State) (workflow.State, error) {
			*trail = append(*trail, "finalize")
			st[workflow.FinalResultKey] = map[string]any{"status": "completed"}
			return st, nil
		}).
		Entry("first").
		Edge("first", "second").
		Edge("second", "finalize").
		Edge("finalize", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return g
}

func TestExecuteCompletes(t *testing.T) {
	ctx := context.Background()
	var trail []string
	g := linearGraph(t, &trail)
	eng, store := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{"seed": 1}, engine.WithCorrelationID("abc123"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusCompleted {
		t.Fatalf("run status = %q, want completed (error: %s)", run.Status, run.Error)
	}
	if run.CorrelationID != "abc123" {
		t.Errorf("correlation id = %q, want %q", run.CorrelationID, "abc123")
	}
	if want := []string{"first", "second", "finalize"}; strings.Join(trail, ",") != strings.Join(want, ",") {
		t.Errorf("trail = %v, want %v", trail, want)
	}
	if len(run.FinalResult) == 0 {
		t.Error("final result not copied onto the run")
	}

	// Initial checkpoint plus one per step.
	cps, err := store.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if len(cps) != 4 {
		t.Fatalf("checkpoints = %d, want 4", len(cps))
	}
	if cps[0].Step != workflow.StartMarker {
		t.Errorf("first checkpoint step = %q, want start marker", cps[0].Step)
	}
	if cps[3].Next != workflow.End {
		t.Errorf("last checkpoint next = %q, want end marker", cps[3].Next)
	}
}

func TestExecuteStepFailure(t *testing.T) {
	ctx := context.Background()
	g, err := workflow.NewBuilder("failing").
		Step("ok", func(_ context.Context, st workflow.State) (workflow.State, error) {
			return st, nil
		}).
		Step("broken", func(_ context.Context, st workflow.State) (workflow.State, error) {
			return nil, errors.New("downstream unavailable")
		}).
		Entry("ok").
		Edge("ok", "broken").
		Edge("broken", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	eng, store := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "downstream unavailable") {
		t.Errorf("run error = %q, want the step failure", run.Error)
	}

	// Only the initial checkpoint and the completed step persist.
	cps, err := store.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if len(cps) != 2 {
		t.Errorf("checkpoints = %d, want 2", len(cps))
	}
}

func TestExecutePanicFails(t *testing.T) {
	g, err := workflow.NewBuilder("panicky").
		Step("explode", func(_ context.Context, st workflow.State) (workflow.State, error) {
			panic("unexpected nil")
		}).
		Entry("explode").
		Edge("explode", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	eng, _ := newEngine(t, g)

	run, err := eng.Execute(context.Background(), g, workflow.State{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusFailed {
		t.Errorf("run status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "panic") {
		t.Errorf("run error = %q, want panic conversion", run.Error)
	}
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, err := workflow.NewBuilder("cancellable").
		Step("first", func(_ context.Context, st workflow.State) (workflow.State, error) {
			cancel() // Cancellation lands between steps.
			return st, nil
		}).
		Step("never", func(_ context.Context, st workflow.State) (workflow.State, error) {
			t.Error("step after cancellation executed")
			return st, nil
		}).
		Entry("first").
		Edge("first", "never").
		Edge("never", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	eng, _ := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	if run.Status != workflow.RunStatusCancelled {
		t.Errorf("run status = %q, want cancelled", run.Status)
	}
}

func gatedGraph(t *testing.T) *workflow.Graph {
	t.Helper()
	g, err := workflow.NewBuilder("gated").
		Step("prepare", func(_ context.Context, st workflow.State) (workflow.State, error) {
			st["prepared"] = true
			return st, nil
		}).
		Gate("await_approval", func(_ context.Context, st workflow.State) (workflow.State, error) {
			ap, _ := st.ApprovalFor("await_approval")
			st["is_approved"] = ap.Approved
			return st, nil
		}).
		Step("finalize", func(_ context.Context, st workflow.State) (workflow.State, error) {
			st[workflow.FinalResultKey] = map[string]any{"approved": st.Bool("is_approved")}
			return st, nil
		}).
		Entry("prepare").
		Edge("prepare", "await_approval").
		Edge("await_approval", "finalize").
		Edge("finalize", workflow.End).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return g
}

func TestApprovalSuspendAndResume(t *testing.T) {
	ctx := context.Background()
	g := gatedGraph(t)
	eng, store := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusWaitingApproval {
		t.Fatalf("run status = %q, want waiting_approval", run.Status)
	}
	if run.PendingStep != "await_approval" {
		t.Errorf("pending step = %q, want await_approval", run.PendingStep)
	}

	// Suspension survives a restart: reload from the store.
	reloaded, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if reloaded.Status != workflow.RunStatusWaitingApproval {
		t.Fatalf("persisted status = %q, want waiting_approval", reloaded.Status)
	}

	resumed, err := eng.Resume(ctx, run.ID, workflow.Approval{Approved: true, ApprovedBy: "ops@corp.test"})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != workflow.RunStatusCompleted {
		t.Fatalf("resumed status = %q, want completed (error: %s)", resumed.Status, resumed.Error)
	}
	if !strings.Contains(string(resumed.FinalResult), `"approved":true`) {
		t.Errorf("final result = %s, want approved true", resumed.FinalResult)
	}
}

func TestResumeRejection(t *testing.T) {
	ctx := context.Background()
	g := gatedGraph(t)
	eng, _ := newEngine(t, g)

	run, _ := eng.Execute(ctx, g, workflow.State{})
	resumed, err := eng.Resume(ctx, run.ID, workflow.Approval{Approved: false, Comment: "over budget"})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != workflow.RunStatusCompleted {
		t.Fatalf("resumed status = %q, want completed", resumed.Status)
	}
	if !strings.Contains(string(resumed.FinalResult), `"approved":false`) {
		t.Errorf("final result = %s, want approved false", resumed.FinalResult)
	}
}

func TestResumeNotSuspended(t *testing.T) {
	ctx := context.Background()
	var trail []string
	g := linearGraph(t, &trail)
	eng, _ := newEngine(t, g)

	run, _ := eng.Execute(ctx, g, workflow.State{})
	if _, err := eng.Resume(ctx, run.ID, workflow.Approval{Approved: true}); !errors.Is(err, flowops.ErrRunTerminal) {
		t.Errorf("Resume() on completed run error = %v, want ErrRunTerminal", err)
	}
}

func TestRecoverContinuesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	var trail []string
	g := linearGraph(t, &trail)
	eng, store := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Simulate a crash after the last checkpoint: rewind the record to
	// running.
	run.Status = workflow.RunStatusRunning
	run.CompletedAt = nil
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	trail = nil
	recovered, err := eng.Recover(ctx, run.ID)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if recovered.Status != workflow.RunStatusCompleted {
		t.Fatalf("recovered status = %q, want completed", recovered.Status)
	}
	// The latest checkpoint already pointed at End, so no step re-executes.
	if len(trail) != 0 {
		t.Errorf("steps re-executed on recover: %v", trail)
	}
}

func TestRecoverAllPicksUpRunningOnly(t *testing.T) {
	ctx := context.Background()
	var trail []string
	g := linearGraph(t, &trail)
	eng, store := newEngine(t, g)

	crashed, _ := eng.Execute(ctx, g, workflow.State{})
	crashed.Status = workflow.RunStatusRunning
	crashed.CompletedAt = nil
	if err := store.UpdateRun(ctx, crashed); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}
	if _, err := eng.Execute(ctx, g, workflow.State{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	n, err := eng.RecoverAll(ctx)
	if err != nil {
		t.Fatalf("RecoverAll() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RecoverAll() = %d, want 1", n)
	}
}

func TestReplayFromEachCheckpointMatches(t *testing.T) {
	ctx := context.Background()
	var trail []string
	g := linearGraph(t, &trail)
	eng, store := newEngine(t, g)

	run, err := eng.Execute(ctx, g, workflow.State{"seed": 42})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusCompleted {
		t.Fatalf("run status = %q, want completed", run.Status)
	}

	cps, err := store.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	for _, cp := range cps {
		replay, err := eng.ReplayFrom(ctx, run.ID, cp.Seq)
		if err != nil {
			t.Fatalf("ReplayFrom(%d) error = %v", cp.Seq, err)
		}
		if replay.Status != workflow.RunStatusCompleted {
			t.Fatalf("replay from seq %d status = %q, want completed", cp.Seq, replay.Status)
		}
		if string(replay.FinalResult) != string(run.FinalResult) {
			t.Errorf("replay from seq %d final result = %s, want %s", cp.Seq, replay.FinalResult, run.FinalResult)
		}
	}
}

func TestRuntimeMisroutedDecisionFailsAsConfig(t *testing.T) {
	const proceed workflow.Decision = "proceed"
	g, err := workflow.NewBuilder("drifty").
		Step("pick", func(_ context.Context, st workflow.State) (workflow.State, error) {
			return st, nil
		}).
		Entry("pick").
		Branch("pick",
			func(workflow.State) workflow.Decision { return "uncharted" },
			[]workflow.Decision{proceed},
			map[workflow.Decision]string{proceed: workflow.End},
		).
		Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	eng, _ := newEngine(t, g)

	run, err := eng.Execute(context.Background(), g, workflow.State{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if run.Status != workflow.RunStatusFailed {
		t.Fatalf("run status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "no route") {
		t.Errorf("run error = %q, want a routing configuration error", run.Error)
	}
}
