package idem_test

import (
	"context"
	"testing"
	"time"

	"github.com/Aparnap2/internal-flow-ops/idem"
	"github.com/Aparnap2/internal-flow-ops/kv/memory"
)

func TestCheckMiss(t *testing.T) {
	g := idem.New(memory.New())

	rec, found, err := g.Check(context.Background(), "workflow_run:1:1700000000000")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if found {
		t.Errorf("Check() found = true, want false (rec = %+v)", rec)
	}
}

func TestCommitThenCheck(t *testing.T) {
	ctx := context.Background()
	g := idem.New(memory.New())
	key := "workflow_run:1:1700000000000"

	want := idem.Record{RunID: "run_x", Workflow: "company-intake", Status: "completed"}
	if err := g.Commit(ctx, key, want); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rec, found, err := g.Check(ctx, key)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !found {
		t.Fatal("Check() found = false, want true")
	}
	if rec.RunID != want.RunID || rec.Workflow != want.Workflow || rec.Status != want.Status {
		t.Errorf("Check() = %+v, want %+v", rec, want)
	}
}

func TestRecordExpires(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	g := idem.New(store, idem.WithTTL(time.Hour))
	key := "workflow_run:1:1700000000000"
	if err := g.Commit(ctx, key, idem.Record{RunID: "run_x"}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	now = now.Add(2 * time.Hour)
	_, found, err := g.Check(ctx, key)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if found {
		t.Error("Check() after TTL found = true, want false")
	}
}
