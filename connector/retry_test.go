package connector_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Aparnap2/internal-flow-ops/backoff"
	"github.com/Aparnap2/internal-flow-ops/connector"
)

type flakyCRM struct {
	connector.SimulatedCRM
	failures int
	calls    int
}

func (f *flakyCRM) Company(ctx context.Context, id string) (*connector.Object, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return f.SimulatedCRM.Company(ctx, id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	flaky := &flakyCRM{failures: 2}
	crm := connector.WithRetry(flaky, backoff.NewConstant(time.Millisecond), 3, discardLogger())

	obj, err := crm.Company(context.Background(), "42")
	if err != nil {
		t.Fatalf("Company() error = %v", err)
	}
	if obj.ID != "42" {
		t.Errorf("Company() id = %q, want %q", obj.ID, "42")
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	flaky := &flakyCRM{failures: 10}
	crm := connector.WithRetry(flaky, backoff.NewConstant(time.Millisecond), 3, discardLogger())

	if _, err := crm.Company(context.Background(), "42"); err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyCRM{failures: 10}
	crm := connector.WithRetry(flaky, backoff.NewConstant(time.Minute), 3, discardLogger())

	if _, err := crm.Company(ctx, "42"); !errors.Is(err, context.Canceled) {
		t.Errorf("Company() error = %v, want context.Canceled", err)
	}
	if flaky.calls != 1 {
		t.Errorf("calls = %d, want 1", flaky.calls)
	}
}
