// Package connector defines the boundary interfaces for every external
// collaborator the workflows talk to, plus simulated implementations.
// Graphs receive these interfaces at construction, so tests and local
// development swap in fakes without touching graph code.
package connector

import "context"

// Object is a CRM object: its id plus a flat property map.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Association is a related CRM object reference.
type Association struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// CRM reads companies, contacts, and deals from the system of record.
type CRM interface {
	Company(ctx context.Context, id string) (*Object, error)
	Contact(ctx context.Context, id string) (*Object, error)
	Deal(ctx context.Context, id string) (*Object, error)
	Associations(ctx context.Context, objectType, id string) (map[string][]Association, error)
}

// Record is a row in the operations tables.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Tables writes operational records (intake rows, procurement requests,
// purchase orders).
type Tables interface {
	UpsertRecord(ctx context.Context, table string, fields map[string]any) (*Record, error)
	UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) (*Record, error)
	CreateRecord(ctx context.Context, table string, fields map[string]any) (*Record, error)
}

// Notes manages knowledge-base pages: SOP links, kickoff artifacts.
type Notes interface {
	AttachDocLink(ctx context.Context, pageID, url string) error
	SearchDocs(ctx context.Context, query string) ([]string, error)
}

// Event describes a calendar event to create.
type Event struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

// CreatedEvent is the scheduling result.
type CreatedEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
	Link    string `json:"link,omitempty"`
}

// Calendar schedules meetings.
type Calendar interface {
	CreateEvent(ctx context.Context, ev Event) (*CreatedEvent, error)
}

// Model is the language-model boundary used by analysis steps. Complete
// returns the raw model output; callers parse and fall back on their own.
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
