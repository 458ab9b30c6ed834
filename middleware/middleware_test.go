package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Aparnap2/internal-flow-ops/id"
	"github.com/Aparnap2/internal-flow-ops/middleware"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

func testRun() *workflow.Run {
	return &workflow.Run{ID: id.NewRunID(), Graph: "test-graph"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *workflow.Run, _ string, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *workflow.Run, _ string, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "step")
		return nil
	}

	if err := chain(context.Background(), testRun(), "s", handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "step", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	if err := chain(context.Background(), testRun(), "s", handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	want := errors.New("step broke")
	chain := middleware.Chain(middleware.Logging(discardLogger()))

	err := chain(context.Background(), testRun(), "s", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("chain error = %v, want %v", err, want)
	}
}

func TestRecover_ConvertsPanic(t *testing.T) {
	chain := middleware.Chain(middleware.Recover(discardLogger()))

	err := chain(context.Background(), testRun(), "explode", func(context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panic, got nil")
	}
	if !strings.Contains(err.Error(), "explode") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("panic error = %q, want step name and panic value", err)
	}
}
