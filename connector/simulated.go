package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Simulated collaborators return canned data so the whole pipeline runs
// without credentials. Real API clients drop in behind the same interfaces.

// SimulatedCRM is an in-process CRM with deterministic canned objects.
type SimulatedCRM struct {
	Logger *slog.Logger
}

var _ CRM = (*SimulatedCRM)(nil)

func (c *SimulatedCRM) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *SimulatedCRM) Company(_ context.Context, id string) (*Object, error) {
	c.log().Debug("simulated crm fetch", slog.String("object", "company"), slog.String("id", id))
	return &Object{
		ID: id,
		Properties: map[string]string{
			"name":              fmt.Sprintf("Company %s Inc.", id),
			"domain":            fmt.Sprintf("company%s.com", id),
			"industry":          "Technology",
			"numberofemployees": "250",
			"annualrevenue":     "5000000",
			"lifecyclestage":    "prospect",
		},
	}, nil
}

func (c *SimulatedCRM) Contact(_ context.Context, id string) (*Object, error) {
	c.log().Debug("simulated crm fetch", slog.String("object", "contact"), slog.String("id", id))
	return &Object{
		ID: id,
		Properties: map[string]string{
			"email":     fmt.Sprintf("contact_%s@example.com", id),
			"firstname": "John",
			"lastname":  "Doe",
			"jobtitle":  "Software Engineer",
		},
	}, nil
}

func (c *SimulatedCRM) Deal(_ context.Context, id string) (*Object, error) {
	c.log().Debug("simulated crm fetch", slog.String("object", "deal"), slog.String("id", id))
	return &Object{
		ID: id,
		Properties: map[string]string{
			"dealname":  fmt.Sprintf("Big Deal %s", id),
			"amount":    "50000.00",
			"dealstage": "presentationscheduled",
		},
	}, nil
}

func (c *SimulatedCRM) Associations(_ context.Context, objectType, id string) (map[string][]Association, error) {
	c.log().Debug("simulated crm associations", slog.String("object", objectType), slog.String("id", id))
	switch objectType {
	case "contact":
		return map[string][]Association{
			"companies": {{ID: "comp_123", Type: "contact_to_company"}},
			"deals":     {{ID: "deal_456", Type: "contact_to_deal"}},
		}, nil
	case "company":
		return map[string][]Association{
			"contacts": {{ID: "cont_789", Type: "company_to_contact"}},
			"deals":    {{ID: "deal_456", Type: "company_to_deal"}},
		}, nil
	default:
		return map[string][]Association{}, nil
	}
}

// SimulatedTables stores nothing; it echoes records back with generated ids.
type SimulatedTables struct {
	Logger *slog.Logger

	seq atomic.Int64
}

var _ Tables = (*SimulatedTables)(nil)

func (t *SimulatedTables) log() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *SimulatedTables) record(table string, fields map[string]any) *Record {
	return &Record{
		ID:     fmt.Sprintf("rec_%s_%d", table, t.seq.Add(1)),
		Fields: fields,
	}
}

func (t *SimulatedTables) UpsertRecord(_ context.Context, table string, fields map[string]any) (*Record, error) {
	t.log().Debug("simulated tables upsert", slog.String("table", table))
	return t.record(table, fields), nil
}

func (t *SimulatedTables) UpdateRecord(_ context.Context, table, recordID string, fields map[string]any) (*Record, error) {
	t.log().Debug("simulated tables update", slog.String("table", table), slog.String("record_id", recordID))
	return &Record{ID: recordID, Fields: fields}, nil
}

func (t *SimulatedTables) CreateRecord(_ context.Context, table string, fields map[string]any) (*Record, error) {
	t.log().Debug("simulated tables create", slog.String("table", table))
	return t.record(table, fields), nil
}

// SimulatedNotes acknowledges doc operations without storing anything.
type SimulatedNotes struct {
	Logger *slog.Logger
}

var _ Notes = (*SimulatedNotes)(nil)

func (n *SimulatedNotes) log() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *SimulatedNotes) AttachDocLink(_ context.Context, pageID, url string) error {
	n.log().Debug("simulated notes attach", slog.String("page_id", pageID), slog.String("url", url))
	return nil
}

func (n *SimulatedNotes) SearchDocs(_ context.Context, query string) ([]string, error) {
	n.log().Debug("simulated notes search", slog.String("query", query))
	return []string{"https://notes.example.com/sop/onboarding"}, nil
}

// SimulatedCalendar confirms every event.
type SimulatedCalendar struct {
	Logger *slog.Logger

	seq atomic.Int64
}

var _ Calendar = (*SimulatedCalendar)(nil)

func (c *SimulatedCalendar) CreateEvent(_ context.Context, ev Event) (*CreatedEvent, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := fmt.Sprintf("evt_cal_%d", c.seq.Add(1))
	logger.Debug("simulated calendar event", slog.String("summary", ev.Summary), slog.String("id", id))
	return &CreatedEvent{
		ID:      id,
		Summary: ev.Summary,
		Status:  "confirmed",
		Link:    "https://calendar.example.com/event?id=" + id,
	}, nil
}

// SimulatedModel answers with a fixed response, or via Respond when set.
// Steps are written to tolerate non-JSON output, so the default "{}" keeps
// every graph on its fallback path.
type SimulatedModel struct {
	Response string
	Respond  func(system, prompt string) (string, error)
}

var _ Model = (*SimulatedModel)(nil)

func (m *SimulatedModel) Complete(_ context.Context, system, prompt string) (string, error) {
	if m.Respond != nil {
		return m.Respond(system, prompt)
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "{}", nil
}
