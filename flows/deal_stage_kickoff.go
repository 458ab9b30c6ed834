package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// The kickoff graph only acts when a deal moves into this stage; every
// other stage change ends the run immediately.
const kickoffTriggerStage = "presentationscheduled"

// Deals above this amount, already closed-won, or of an enterprise type get
// a manual sign-off before the internal kickoff goes on the calendar.
const kickoffApprovalAmount = 50_000

const dealsTable = "Deals"

const (
	kickoffProceed workflow.Decision = "proceed"
	kickoffSkip    workflow.Decision = "skip"

	kickoffAwait    workflow.Decision = "await_approval"
	kickoffSchedule workflow.Decision = "schedule"
)

// NewDealStageKickoff builds the deal stage kickoff graph: when a deal
// reaches the presentation stage, analyze what the internal kickoff needs,
// propose slots, gate large or enterprise deals on approval, and put the
// meeting on the calendar.
func NewDealStageKickoff(c Clients) *workflow.Graph {
	return workflow.NewBuilder(DealStageKickoff).
		Step("extract_deal_data", extractDealData).
		Step("analyze_kickoff_requirements", analyzeKickoffRequirements(c)).
		Step("propose_internal_slots", proposeInternalSlots(c)).
		Step("check_approval_requirements", checkKickoffApproval).
		Gate("wait_for_approval", recordGateDecision("wait_for_approval")).
		Step("create_calendar_event", createKickoffEvent(c)).
		Step("link_artifacts", linkKickoffArtifacts(c)).
		Step("finalize_kickoff", finalizeKickoff).
		Entry("extract_deal_data").
		Branch("extract_deal_data",
			func(st workflow.State) workflow.Decision {
				if eventField(st, "property_value") == kickoffTriggerStage {
					return kickoffProceed
				}
				return kickoffSkip
			},
			[]workflow.Decision{kickoffProceed, kickoffSkip},
			map[workflow.Decision]string{
				kickoffProceed: "analyze_kickoff_requirements",
				kickoffSkip:    workflow.End,
			}).
		Edge("analyze_kickoff_requirements", "propose_internal_slots").
		Edge("propose_internal_slots", "check_approval_requirements").
		Branch("check_approval_requirements",
			func(st workflow.State) workflow.Decision {
				if st.Bool("requires_approval") {
					return kickoffAwait
				}
				return kickoffSchedule
			},
			[]workflow.Decision{kickoffAwait, kickoffSchedule},
			map[workflow.Decision]string{
				kickoffAwait:    "wait_for_approval",
				kickoffSchedule: "create_calendar_event",
			}).
		Edge("wait_for_approval", "create_calendar_event").
		Edge("create_calendar_event", "link_artifacts").
		Edge("link_artifacts", "finalize_kickoff").
		Edge("finalize_kickoff", workflow.End).
		MustCompile()
}

func extractDealData(_ context.Context, st workflow.State) (workflow.State, error) {
	props := detailProperties(st)

	st["deal_data"] = map[string]any{
		"crm_id":      detailID(st),
		"name":        props["dealname"],
		"stage":       props["dealstage"],
		"amount":      props["amount"],
		"close_date":  props["closedate"],
		"probability": props["hs_deal_stage_probability"],
		"deal_type":   props["dealtype"],
		"pipeline":    props["pipeline"],
	}
	return st, nil
}

func analyzeKickoffRequirements(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))

		prompt := fmt.Sprintf(
			"Plan the internal kickoff for this deal. Deal: %s, Amount: %s, Stage: %s, Type: %s, Pipeline: %s.\n"+
				"Return JSON with fields: participants (list of roles), required_artifacts (list), meeting_duration_minutes, scheduling_considerations, success_factors (list).",
			data.String("name"), data.String("amount"), data.String("stage"),
			data.String("deal_type"), data.String("pipeline"),
		)

		requirements := map[string]any{
			"participants":             []string{"Account Executive", "Solutions Engineer", "Customer Success Manager"},
			"required_artifacts":       []string{"Contract", "Implementation Plan"},
			"meeting_duration_minutes": 60,
			"success_factors":          []string{"Clear agenda", "Defined next steps"},
		}
		out, err := c.Model.Complete(ctx, "You are an expert in deal management and customer success.", prompt)
		if err != nil {
			c.log().Warn("kickoff analysis unavailable", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("kickoff analysis failed: %v", err))
		} else if parsed, ok := parseModelJSON(out); ok && parsed["participants"] != nil {
			requirements = parsed
		}

		st["kickoff_requirements"] = requirements
		return st, nil
	}
}

func proposeInternalSlots(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))

		prompt := fmt.Sprintf(
			"Propose three internal kickoff slots within the next two weeks for deal %s. Return JSON with field: slots (list of RFC3339 timestamps).",
			data.String("name"),
		)

		slots := []any{"2024-01-15T10:00:00", "2024-01-15T14:00:00", "2024-01-16T11:00:00"}
		out, err := c.Model.Complete(ctx, "You are a scheduling assistant for internal sales operations.", prompt)
		if err != nil {
			c.log().Warn("slot proposal unavailable", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("slot proposal failed: %v", err))
		} else if parsed, ok := parseModelJSON(out); ok {
			if list, isList := parsed["slots"].([]any); isList && len(list) > 0 {
				slots = list
			}
		}

		st["proposed_slots"] = slots
		return st, nil
	}
}

func checkKickoffApproval(_ context.Context, st workflow.State) (workflow.State, error) {
	data := workflow.State(st.Map("deal_data"))

	var reasons []string
	if amount := floatOr0(data.String("amount")); amount > kickoffApprovalAmount {
		reasons = append(reasons, fmt.Sprintf("deal amount %.2f exceeds %d", amount, kickoffApprovalAmount))
	}
	if data.String("stage") == "closedwon" {
		reasons = append(reasons, "deal already closed won")
	}
	if strings.Contains(strings.ToLower(data.String("deal_type")), "enterprise") {
		reasons = append(reasons, "enterprise deal type")
	}

	st["requires_approval"] = len(reasons) > 0
	if len(reasons) > 0 {
		st["approval_data"] = map[string]any{
			"reasons":      reasons,
			"deal_data":    map[string]any(data),
			"requested_at": nowRFC3339(),
		}
	} else {
		st["is_approved"] = true
	}
	return st, nil
}

// createKickoffEvent schedules the internal kickoff. A rejected approval
// skips the calendar without failing the run; the record keeping in
// link_artifacts and finalize still happens.
func createKickoffEvent(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		if !st.Bool("is_approved") {
			c.log().Info("kickoff rejected, skipping calendar event")
			return st, nil
		}
		data := workflow.State(st.Map("deal_data"))

		ev, err := c.Calendar.CreateEvent(ctx, connector.Event{
			Summary:     "Internal Kickoff: " + data.String("name"),
			Description: "Internal kickoff meeting for deal " + data.String("name"),
		})
		if err != nil {
			return nil, fmt.Errorf("flows: create kickoff event: %w", err)
		}
		st["calendar_event"] = map[string]any{
			"id":      ev.ID,
			"summary": ev.Summary,
			"link":    ev.Link,
		}
		return st, nil
	}
}

// linkKickoffArtifacts writes the scheduling outcome back to the ops table
// and looks up related docs. Both are bookkeeping: failures are recorded
// and the run continues.
func linkKickoffArtifacts(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))
		event := workflow.State(st.Map("calendar_event"))

		if _, err := c.Tables.UpsertRecord(ctx, dealsTable, map[string]any{
			"Deal Name":          data.String("name"),
			"HubSpot ID":         data.String("crm_id"),
			"Kickoff Scheduled":  event.String("id") != "",
			"Kickoff Event Link": event.String("link"),
		}); err != nil {
			c.log().Warn("kickoff record update failed", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("kickoff record update failed: %v", err))
		}

		docs, err := c.Notes.SearchDocs(ctx, "deal kickoff")
		if err != nil {
			c.log().Warn("kickoff doc search failed", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("kickoff doc search failed: %v", err))
		} else {
			st["kickoff_docs"] = docs
		}

		st["artifacts_linked"] = true
		return st, nil
	}
}

func finalizeKickoff(_ context.Context, st workflow.State) (workflow.State, error) {
	approvalStatus := "approved"
	if !st.Bool("is_approved") {
		approvalStatus = "rejected"
	}
	st[workflow.FinalResultKey] = map[string]any{
		"status":               "completed",
		"deal_data":            st.Map("deal_data"),
		"kickoff_requirements": st.Map("kickoff_requirements"),
		"proposed_slots":       st["proposed_slots"],
		"calendar_event":       st.Map("calendar_event"),
		"approval_required":    st.Bool("requires_approval"),
		"approval_status":      approvalStatus,
		"artifacts_linked":     st.Bool("artifacts_linked"),
		"completed_at":         nowRFC3339(),
	}
	return st, nil
}
