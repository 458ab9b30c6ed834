package backlog_test

import (
	"context"
	"errors"
	"testing"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/backlog"
	"github.com/Aparnap2/internal-flow-ops/envelope"
	"github.com/Aparnap2/internal-flow-ops/kv/memory"
)

func buildEnvelope(t *testing.T, objectID string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.Build(envelope.RawEvent{
		SubscriptionType: "company.creation",
		ObjectID:         "12345",
		OccurredAt:       1700000000000,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	env.ObjectID = objectID
	return env
}

func TestPushPopFIFO(t *testing.T) {
	ctx := context.Background()
	q := backlog.New(memory.New(), "")

	for _, oid := range []string{"1", "2", "3"} {
		if _, err := q.Push(ctx, buildEnvelope(t, oid)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 3 {
		t.Errorf("Size() = %d, want 3", size)
	}

	for _, want := range []string{"1", "2", "3"} {
		env, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if env.ObjectID != want {
			t.Errorf("Pop() object id = %q, want %q", env.ObjectID, want)
		}
	}
}

func TestPopEmpty(t *testing.T) {
	q := backlog.New(memory.New(), "empty")
	if _, err := q.Pop(context.Background()); !errors.Is(err, flowops.ErrQueueEmpty) {
		t.Errorf("Pop() error = %v, want ErrQueueEmpty", err)
	}
}
