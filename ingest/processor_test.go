package ingest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Aparnap2/internal-flow-ops/backlog"
	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/engine"
	"github.com/Aparnap2/internal-flow-ops/envelope"
	"github.com/Aparnap2/internal-flow-ops/flows"
	"github.com/Aparnap2/internal-flow-ops/idem"
	"github.com/Aparnap2/internal-flow-ops/ingest"
	"github.com/Aparnap2/internal-flow-ops/kv/memory"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

type harness struct {
	processor *ingest.Processor
	queue     *backlog.Queue
	store     workflow.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kvs := memory.New()

	reg, err := flows.BuildRegistry(flows.Clients{
		CRM:      &connector.SimulatedCRM{Logger: logger},
		Tables:   &connector.SimulatedTables{Logger: logger},
		Notes:    &connector.SimulatedNotes{Logger: logger},
		Calendar: &connector.SimulatedCalendar{Logger: logger},
		Model:    &connector.SimulatedModel{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	store := workflow.NewKVStore(kvs)
	eng := engine.New(reg, store, engine.WithLogger(logger))
	queue := backlog.New(kvs, "")
	proc := ingest.New(
		idem.New(kvs, idem.WithLogger(logger)),
		reg,
		eng,
		&connector.SimulatedCRM{Logger: logger},
		queue,
		ingest.WithLogger(logger),
		ingest.WithDrainConcurrency(2),
	)
	return &harness{processor: proc, queue: queue, store: store}
}

func contactCreated(eventID string, occurredAt int64) envelope.RawEvent {
	return envelope.RawEvent{
		EventID:          json.Number(eventID),
		SubscriptionType: "contact.creation",
		ObjectID:         json.Number("77"),
		OccurredAt:       occurredAt,
	}
}

func TestProcessBatchTriggersWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcomes := h.processor.ProcessBatch(ctx, []envelope.RawEvent{contactCreated("100", 1700000000000)})
	if len(outcomes) != 1 {
		t.Fatalf("len(outcomes) = %d, want 1", len(outcomes))
	}
	out := outcomes[0]
	if out.Status != ingest.StatusTriggered {
		t.Fatalf("status = %q, want triggered (reason: %s)", out.Status, out.Reason)
	}
	if out.Workflow != flows.ContactRoleMapping {
		t.Errorf("workflow = %q, want %q", out.Workflow, flows.ContactRoleMapping)
	}
	if out.RunID == "" {
		t.Error("run id is empty")
	}
	if out.CorrelationID == "" {
		t.Error("correlation id is empty")
	}

	size, err := h.queue.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 1 {
		t.Errorf("backlog size = %d, want 1", size)
	}
}

func TestDuplicateDeliveriesCollapse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Same occurrence, fresh event id on the redelivery.
	first := h.processor.ProcessBatch(ctx, []envelope.RawEvent{contactCreated("100", 1700000000000)})[0]
	second := h.processor.ProcessBatch(ctx, []envelope.RawEvent{contactCreated("200", 1700000000000)})[0]

	if first.Status != ingest.StatusTriggered {
		t.Fatalf("first status = %q, want triggered (reason: %s)", first.Status, first.Reason)
	}
	if second.Status != ingest.StatusIgnored {
		t.Fatalf("second status = %q, want ignored (reason: %s)", second.Status, second.Reason)
	}
	if second.RunID != first.RunID {
		t.Errorf("duplicate run id = %q, want %q", second.RunID, first.RunID)
	}
}

func TestDistinctOccurrencesBothRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.processor.ProcessBatch(ctx, []envelope.RawEvent{contactCreated("100", 1700000000000)})[0]
	second := h.processor.ProcessBatch(ctx, []envelope.RawEvent{contactCreated("100", 1700000060000)})[0]

	if first.Status != ingest.StatusTriggered || second.Status != ingest.StatusTriggered {
		t.Fatalf("statuses = %q, %q, want both triggered", first.Status, second.Status)
	}
	if first.RunID == second.RunID {
		t.Errorf("distinct occurrences shared run id %q", first.RunID)
	}
}

func TestUnboundEventIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out := h.processor.ProcessBatch(ctx, []envelope.RawEvent{{
		EventID:          json.Number("300"),
		SubscriptionType: "deal.creation",
		ObjectID:         json.Number("901"),
		OccurredAt:       1700000000000,
	}})[0]
	if out.Status != ingest.StatusIgnored {
		t.Fatalf("status = %q, want ignored (reason: %s)", out.Status, out.Reason)
	}
	if out.RunID != "" {
		t.Errorf("ignored event got run id %q", out.RunID)
	}

	// Unbound events still land in the backlog.
	size, err := h.queue.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 1 {
		t.Errorf("backlog size = %d, want 1", size)
	}
}

func TestBatchIsolatesMalformedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcomes := h.processor.ProcessBatch(ctx, []envelope.RawEvent{
		{SubscriptionType: "contact.creation", OccurredAt: 1700000000000}, // no objectId
		contactCreated("400", 1700000000000),
	})
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(outcomes))
	}
	if outcomes[0].Status != ingest.StatusError {
		t.Errorf("malformed outcome status = %q, want error", outcomes[0].Status)
	}
	if outcomes[1].Status != ingest.StatusTriggered {
		t.Errorf("valid outcome status = %q, want triggered (reason: %s)", outcomes[1].Status, outcomes[1].Reason)
	}
}

func TestSuspendedRunCommitsIdempotency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := envelope.RawEvent{
		EventID:          json.Number("500"),
		SubscriptionType: "deal.propertyChange",
		ObjectID:         json.Number("901"),
		OccurredAt:       1700000000000,
		PropertyName:     "amount",
		PropertyValue:    "60000",
	}
	first := h.processor.ProcessBatch(ctx, []envelope.RawEvent{raw})[0]
	if first.Status != ingest.StatusTriggered {
		t.Fatalf("first status = %q, want triggered (reason: %s)", first.Status, first.Reason)
	}

	raw.EventID = json.Number("501")
	second := h.processor.ProcessBatch(ctx, []envelope.RawEvent{raw})[0]
	if second.Status != ingest.StatusIgnored {
		t.Fatalf("redelivery status = %q, want ignored (reason: %s)", second.Status, second.Reason)
	}
	if second.RunID != first.RunID {
		t.Errorf("redelivery run id = %q, want %q", second.RunID, first.RunID)
	}
}

func TestDrainEmptiesBacklog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.processor.ProcessBatch(ctx, []envelope.RawEvent{
		contactCreated("600", 1700000000000),
		contactCreated("601", 1700000060000),
		contactCreated("602", 1700000120000),
	})

	count, err := h.processor.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if count != 3 {
		t.Errorf("drained = %d, want 3", count)
	}

	size, err := h.queue.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 0 {
		t.Errorf("backlog size after drain = %d, want 0", size)
	}

	// Drained duplicates collapse against the guard, so no new runs appear.
	time.Sleep(100 * time.Millisecond)
	runs, err := h.store.ListRuns(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("runs after drain = %d, want 3", len(runs))
	}
}
