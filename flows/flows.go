// Package flows defines the business workflow graphs and the registry that
// maps CRM event triggers to them. Each graph receives its external
// collaborators at construction, so tests run against simulated clients
// and production swaps in real ones without touching graph code.
package flows

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// State keys shared by every graph. The ingest processor seeds them before
// Execute; steps only ever read them.
const (
	// EventKey holds the normalized event envelope as a JSON object
	// (object_id, property_name, property_value, ...).
	EventKey = "event"

	// EnrichedKey holds CRM enrichment: {"details": object,
	// "associations": {kind: [object, ...]}}. Enrichment is best effort;
	// steps tolerate its absence.
	EnrichedKey = "enriched"
)

// Graph names, also used as the Workflow field of idempotency records.
const (
	CompanyIntake       = "company-intake"
	ContactRoleMapping  = "contact-role-mapping"
	DealStageKickoff    = "deal-stage-kickoff"
	ProcurementApproval = "procurement-approval"
)

// Clients bundles the collaborators the graphs call out to.
type Clients struct {
	CRM      connector.CRM
	Tables   connector.Tables
	Notes    connector.Notes
	Calendar connector.Calendar
	Model    connector.Model
	Logger   *slog.Logger
}

func (c Clients) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// BuildRegistry compiles the four graphs and binds their triggers.
func BuildRegistry(c Clients) (*workflow.Registry, error) {
	r := workflow.NewRegistry()

	bindings := []struct {
		graph    *workflow.Graph
		triggers []string
	}{
		{NewCompanyIntake(c), []string{"company.creation", "company.propertyChange"}},
		{NewContactRoleMapping(c), []string{"contact.creation", "contact.propertyChange"}},
		{NewDealStageKickoff(c), []string{"deal.propertyChange.dealstage"}},
		{NewProcurementApproval(c), []string{"deal.propertyChange.amount"}},
	}
	for _, b := range bindings {
		for _, t := range b.triggers {
			if err := r.Register(t, b.graph); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// eventField reads a field off the event envelope object.
func eventField(st workflow.State, key string) string {
	return workflow.State(st.Map(EventKey)).String(key)
}

// detailProperties returns the enriched object's property map, empty when
// enrichment did not run.
func detailProperties(st workflow.State) map[string]string {
	enriched := st.Map(EnrichedKey)
	details := workflow.State(enriched).Map("details")
	raw := workflow.State(details).Map("properties")
	props := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			props[k] = s
		}
	}
	return props
}

// detailID returns the enriched object's id.
func detailID(st workflow.State) string {
	enriched := st.Map(EnrichedKey)
	return workflow.State(workflow.State(enriched).Map("details")).String("id")
}

// associatedObjects returns the enriched associations of one kind
// ("companies", "contacts", "deals"), each as {id, properties}.
func associatedObjects(st workflow.State, kind string) []map[string]any {
	enriched := st.Map(EnrichedKey)
	assocs := workflow.State(enriched).Map("associations")
	list, _ := assocs[kind].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// objectProperty reads a property off an {id, properties} object map.
func objectProperty(obj map[string]any, key string) string {
	return workflow.State(workflow.State(obj).Map("properties")).String(key)
}

// parseModelJSON decodes a model completion as a JSON object. Models drift
// into prose; callers fall back to canned analysis when ok is false.
func parseModelJSON(out string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &m); err != nil {
		return nil, false
	}
	return m, true
}

// floatOr0 coerces a property string to float64, 0 on any parse failure.
func floatOr0(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// intOr0 coerces a property string to int, 0 on any parse failure.
func intOr0(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
