package envelope_test

import (
	"strings"
	"testing"

	"github.com/Aparnap2/internal-flow-ops/envelope"
)

func rawEvent() envelope.RawEvent {
	return envelope.RawEvent{
		EventID:          "100",
		SubscriptionType: "company.creation",
		ObjectID:         "12345",
		OccurredAt:       1700000000000,
	}
}

func TestBuildDeterministic(t *testing.T) {
	a, err := envelope.Build(rawEvent())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := envelope.Build(rawEvent())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if a.CorrelationID != b.CorrelationID {
		t.Errorf("correlation ids differ: %q vs %q", a.CorrelationID, b.CorrelationID)
	}
	if len(a.CorrelationID) != 16 {
		t.Errorf("correlation id length = %d, want 16", len(a.CorrelationID))
	}
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("dedup keys differ: %q vs %q", a.DedupKey(), b.DedupKey())
	}
}

func TestBuildDistinctOccurrences(t *testing.T) {
	a, _ := envelope.Build(rawEvent())

	later := rawEvent()
	later.OccurredAt = 1700000001000
	b, _ := envelope.Build(later)

	if a.CorrelationID == b.CorrelationID {
		t.Error("distinct occurrences produced the same correlation id")
	}
	if a.DedupKey() == b.DedupKey() {
		t.Error("distinct occurrences produced the same dedup key")
	}
}

func TestDedupKeyIgnoresEventID(t *testing.T) {
	a, _ := envelope.Build(rawEvent())

	redelivered := rawEvent()
	redelivered.EventID = "999"
	b, _ := envelope.Build(redelivered)

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("redelivery dedup key = %q, want %q", b.DedupKey(), a.DedupKey())
	}
}

func TestGeneratedEventID(t *testing.T) {
	raw := rawEvent()
	raw.EventID = ""

	env, err := envelope.Build(raw)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if env.EventID == "" {
		t.Error("expected a generated event id")
	}
}

func TestObjectTypeClassification(t *testing.T) {
	tests := []struct {
		subscription string
		objectType   string
		action       string
	}{
		{"contact.creation", "contact", "creation"},
		{"company.propertyChange", "company", "propertyChange"},
		{"deal.propertyChange", "deal", "propertyChange"},
		{"ticket.creation", "unknown", "creation"},
	}

	for _, tt := range tests {
		t.Run(tt.subscription, func(t *testing.T) {
			raw := rawEvent()
			raw.SubscriptionType = tt.subscription
			env, err := envelope.Build(raw)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if env.ObjectType != tt.objectType {
				t.Errorf("ObjectType = %q, want %q", env.ObjectType, tt.objectType)
			}
			if env.Action != tt.action {
				t.Errorf("Action = %q, want %q", env.Action, tt.action)
			}
		})
	}
}

func TestBuildMalformed(t *testing.T) {
	missingObject := rawEvent()
	missingObject.ObjectID = ""
	if _, err := envelope.Build(missingObject); err == nil || !strings.Contains(err.Error(), "objectId") {
		t.Errorf("Build() without objectId error = %v, want objectId error", err)
	}

	missingSub := rawEvent()
	missingSub.SubscriptionType = ""
	if _, err := envelope.Build(missingSub); err == nil {
		t.Error("Build() without subscriptionType succeeded, want error")
	}
}
