// Package envelope normalizes raw CRM webhook events into deterministic
// envelopes. The same raw event always yields the same correlation and
// dedup keys no matter when or on which replica it is processed.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object types recognized from subscription prefixes.
const (
	ObjectContact = "contact"
	ObjectCompany = "company"
	ObjectDeal    = "deal"
	ObjectUnknown = "unknown"
)

// RawEvent is a single event as delivered by the CRM webhook, field names
// matching the upstream wire format.
type RawEvent struct {
	EventID          json.Number `json:"eventId,omitempty"`
	SubscriptionType string      `json:"subscriptionType"`
	ObjectID         json.Number `json:"objectId"`
	OccurredAt       int64       `json:"occurredAt"`
	PropertyName     string      `json:"propertyName,omitempty"`
	PropertyValue    string      `json:"propertyValue,omitempty"`
	ChangeSource     string      `json:"changeSource,omitempty"`
	AttemptNumber    int         `json:"attemptNumber,omitempty"`
	PortalID         int64       `json:"portalId,omitempty"`
}

// Envelope is the normalized form every downstream component consumes.
type Envelope struct {
	EventID       string          `json:"event_id"`
	Source        string          `json:"source"`
	ObjectType    string          `json:"object_type"`
	ObjectID      string          `json:"object_id"`
	Action        string          `json:"action"`
	PropertyName  string          `json:"property_name,omitempty"`
	PropertyValue string          `json:"property_value,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	OccurredAtMs  int64           `json:"occurred_at_ms"`
	ReceivedAt    time.Time       `json:"received_at"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Build normalizes a raw event into an Envelope. It fails only on malformed
// input: a missing object id or subscription type. The event id is generated
// when the delivery omits one; everything derived from the raw event itself
// is deterministic.
func Build(raw RawEvent) (*Envelope, error) {
	objectID := raw.ObjectID.String()
	if objectID == "" {
		return nil, fmt.Errorf("envelope: missing objectId")
	}
	if raw.SubscriptionType == "" {
		return nil, fmt.Errorf("envelope: missing subscriptionType")
	}

	eventID := raw.EventID.String()
	if eventID == "" {
		eventID = uuid.NewString()
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode payload: %w", err)
	}

	objectType, action := splitSubscription(raw.SubscriptionType)

	return &Envelope{
		EventID:       eventID,
		Source:        "crm",
		ObjectType:    objectType,
		ObjectID:      objectID,
		Action:        action,
		PropertyName:  raw.PropertyName,
		PropertyValue: raw.PropertyValue,
		OccurredAt:    time.UnixMilli(raw.OccurredAt).UTC(),
		OccurredAtMs:  raw.OccurredAt,
		ReceivedAt:    time.Now().UTC(),
		CorrelationID: correlationID(raw.SubscriptionType, objectID, raw.OccurredAt),
		Payload:       payload,
	}, nil
}

// DedupKey identifies a business occurrence for idempotency: the object and
// the moment it changed. Redeliveries carry fresh event ids but the same
// dedup key.
func (e *Envelope) DedupKey() string {
	return fmt.Sprintf("workflow_run:%s:%d", e.ObjectID, e.OccurredAtMs)
}

// correlationID derives a stable 16-hex-char id from the fields that define
// the occurrence.
func correlationID(subscriptionType, objectID string, occurredAtMs int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%d", subscriptionType, objectID, occurredAtMs)))
	return hex.EncodeToString(sum[:])[:16]
}

// splitSubscription maps "company.propertyChange" to ("company",
// "propertyChange"). Unrecognized prefixes classify as unknown.
func splitSubscription(sub string) (objectType, action string) {
	objectType = ObjectUnknown
	action = sub
	if i := strings.Index(sub, "."); i > 0 {
		prefix := sub[:i]
		switch prefix {
		case ObjectContact, ObjectCompany, ObjectDeal:
			objectType = prefix
		}
		action = sub[i+1:]
	}
	return objectType, action
}
