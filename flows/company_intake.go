package flows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Company intake thresholds. Companies above either, in a regulated
// industry, or flagged high risk by analysis go through manual approval
// before the account record is created.
const (
	intakeEmployeeThreshold = 1000
	intakeRevenueThreshold  = 10_000_000
)

const (
	accountsTable = "Accounts"
	sopDocURL     = "https://notes.example.com/sop/onboarding"
)

var regulatedIndustries = map[string]bool{
	"Government":         true,
	"Healthcare":         true,
	"Financial Services": true,
}

const (
	intakeAwait  workflow.Decision = "await_approval"
	intakeUpsert workflow.Decision = "upsert"

	intakeKickoff workflow.Decision = "schedule_kickoff"
	intakeFinish  workflow.Decision = "finish"
)

// NewCompanyIntake builds the company intake graph: extract and normalize
// the company, gate risky ones on approval, create the account record,
// attach the onboarding SOP, and schedule a kickoff for customers.
func NewCompanyIntake(c Clients) *workflow.Graph {
	return workflow.NewBuilder(CompanyIntake).
		Step("start_intake", startIntake).
		Step("extract_company_data", extractCompanyData).
		Step("normalize_data", normalizeCompanyData(c)).
		Step("check_approval_requirements", checkIntakeApproval).
		Gate("wait_for_approval", recordGateDecision("wait_for_approval")).
		Step("upsert_account", upsertAccount(c)).
		Step("attach_sop", attachSOP(c)).
		Step("schedule_kickoff", scheduleCustomerKickoff(c)).
		Step("finalize_intake", finalizeIntake).
		Entry("start_intake").
		Edge("start_intake", "extract_company_data").
		Edge("extract_company_data", "normalize_data").
		Edge("normalize_data", "check_approval_requirements").
		Branch("check_approval_requirements",
			func(st workflow.State) workflow.Decision {
				if st.Bool("requires_approval") {
					return intakeAwait
				}
				return intakeUpsert
			},
			[]workflow.Decision{intakeAwait, intakeUpsert},
			map[workflow.Decision]string{
				intakeAwait:  "wait_for_approval",
				intakeUpsert: "upsert_account",
			}).
		Edge("wait_for_approval", "upsert_account").
		Edge("upsert_account", "attach_sop").
		Branch("attach_sop",
			func(st workflow.State) workflow.Decision {
				data := st.Map("company_data")
				if workflow.State(data).String("lifecycle_stage") == "customer" {
					return intakeKickoff
				}
				return intakeFinish
			},
			[]workflow.Decision{intakeKickoff, intakeFinish},
			map[workflow.Decision]string{
				intakeKickoff: "schedule_kickoff",
				intakeFinish:  workflow.End,
			}).
		Edge("schedule_kickoff", "finalize_intake").
		Edge("finalize_intake", workflow.End).
		MustCompile()
}

func startIntake(_ context.Context, st workflow.State) (workflow.State, error) {
	st["kickoff_scheduled"] = false
	st["requires_approval"] = false
	st["approval_data"] = map[string]any{}
	if _, ok := st[workflow.ErrorsKey]; !ok {
		st[workflow.ErrorsKey] = []string{}
	}
	return st, nil
}

func extractCompanyData(_ context.Context, st workflow.State) (workflow.State, error) {
	props := detailProperties(st)

	lifecycle := props["lifecyclestage"]
	if lifecycle == "" {
		lifecycle = "prospect"
	}
	st["company_data"] = map[string]any{
		"crm_id":          detailID(st),
		"name":            props["name"],
		"domain":          props["domain"],
		"industry":        props["industry"],
		"employee_count":  intOr0(props["numberofemployees"]),
		"annual_revenue":  floatOr0(props["annualrevenue"]),
		"lifecycle_stage": lifecycle,
	}
	return st, nil
}

// normalizeCompanyData asks the model to enrich the extracted company. The
// analysis is advisory: a model outage or non-JSON answer is recorded and
// the run continues with the extracted data alone.
func normalizeCompanyData(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := st.Map("company_data")

		prompt := fmt.Sprintf(
			"Analyze and enrich this company profile. Company: %s, Domain: %s, Industry: %s, Employees: %d, Annual Revenue: %.0f, Lifecycle Stage: %s.\n"+
				"Return JSON with fields: enriched_data (corrected or inferred profile fields), risk_level (LOW/MEDIUM/HIGH/CRITICAL), segment, notes.",
			workflow.State(data).String("name"),
			workflow.State(data).String("domain"),
			workflow.State(data).String("industry"),
			workflow.State(data).Int("employee_count"),
			workflow.State(data).Float("annual_revenue"),
			workflow.State(data).String("lifecycle_stage"),
		)

		out, err := c.Model.Complete(ctx, "You are a data analyst specializing in company data enrichment.", prompt)
		if err != nil {
			c.log().Warn("company analysis unavailable", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("company analysis failed: %v", err))
			st["ai_analysis"] = map[string]any{"error": "analysis unavailable"}
			return st, nil
		}

		analysis, ok := parseModelJSON(out)
		if !ok {
			st["ai_analysis"] = map[string]any{"error": "analysis response was not valid JSON"}
			return st, nil
		}

		if enriched, isMap := analysis["enriched_data"].(map[string]any); isMap {
			for k, v := range enriched {
				if s, isStr := v.(string); isStr && s != "" {
					data[k] = s
				}
			}
			st["company_data"] = data
		}
		st["ai_analysis"] = analysis
		return st, nil
	}
}

func checkIntakeApproval(_ context.Context, st workflow.State) (workflow.State, error) {
	data := workflow.State(st.Map("company_data"))
	analysis := workflow.State(st.Map("ai_analysis"))

	var reasons []string
	if data.Int("employee_count") > intakeEmployeeThreshold {
		reasons = append(reasons, fmt.Sprintf("employee count %d exceeds %d", data.Int("employee_count"), intakeEmployeeThreshold))
	}
	if data.Float("annual_revenue") > intakeRevenueThreshold {
		reasons = append(reasons, fmt.Sprintf("annual revenue %.0f exceeds %d", data.Float("annual_revenue"), intakeRevenueThreshold))
	}
	if regulatedIndustries[data.String("industry")] {
		reasons = append(reasons, "regulated industry: "+data.String("industry"))
	}
	risk := analysis.String("risk_level")
	if risk == "HIGH" || risk == "CRITICAL" {
		reasons = append(reasons, "analysis flagged risk level "+risk)
	}

	st["requires_approval"] = len(reasons) > 0
	if len(reasons) > 0 {
		st["approval_data"] = map[string]any{
			"reasons":      reasons,
			"company_data": map[string]any(data),
			"risk_level":   risk,
			"requested_at": nowRFC3339(),
		}
	}
	return st, nil
}

// recordGateDecision copies the injected approval onto flat state keys the
// rest of the graph reads. Shared by every gate step.
func recordGateDecision(gate string) workflow.StepFunc {
	return func(_ context.Context, st workflow.State) (workflow.State, error) {
		ap, ok := st.ApprovalFor(gate)
		if !ok {
			return nil, fmt.Errorf("flows: gate %q executed without a decision", gate)
		}
		st["is_approved"] = ap.Approved
		st["approved_by"] = ap.ApprovedBy
		st["approval_comment"] = ap.Comment
		return st, nil
	}
}

func upsertAccount(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("company_data"))

		rec, err := c.Tables.UpsertRecord(ctx, accountsTable, map[string]any{
			"Name":            data.String("name"),
			"Domain":          data.String("domain"),
			"Industry":        data.String("industry"),
			"Employee Count":  data.Int("employee_count"),
			"Annual Revenue":  data.Float("annual_revenue"),
			"Lifecycle Stage": data.String("lifecycle_stage"),
			"HubSpot ID":      data.String("crm_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("flows: upsert account record: %w", err)
		}
		st["account_record_id"] = rec.ID
		return st, nil
	}
}

// attachSOP links the onboarding SOP to the account's knowledge-base page.
// The intake is valid without the link, so failures are recorded and the
// run continues.
func attachSOP(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		pageID := st.String("account_record_id")
		if err := c.Notes.AttachDocLink(ctx, pageID, sopDocURL); err != nil {
			c.log().Warn("sop attach failed",
				slog.String("page_id", pageID),
				slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("sop attach failed: %v", err))
			st["sop_attached"] = false
			return st, nil
		}
		st["sop_attached"] = true
		st["sop_url"] = sopDocURL
		return st, nil
	}
}

func scheduleCustomerKickoff(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("company_data"))

		ev, err := c.Calendar.CreateEvent(ctx, connector.Event{
			Summary:     "Customer Kickoff: " + data.String("name"),
			Description: "Onboarding kickoff for " + data.String("name"),
		})
		if err != nil {
			return nil, fmt.Errorf("flows: schedule kickoff: %w", err)
		}
		st["kickoff_scheduled"] = true
		st["kickoff_event"] = map[string]any{
			"id":      ev.ID,
			"summary": ev.Summary,
			"link":    ev.Link,
		}
		return st, nil
	}
}

func finalizeIntake(_ context.Context, st workflow.State) (workflow.State, error) {
	st[workflow.FinalResultKey] = map[string]any{
		"status":            "completed",
		"company_data":      st.Map("company_data"),
		"account_record_id": st.String("account_record_id"),
		"sop_attached":      st.Bool("sop_attached"),
		"approval_required": st.Bool("requires_approval"),
		"kickoff_scheduled": st.Bool("kickoff_scheduled"),
		"completed_at":      nowRFC3339(),
	}
	return st, nil
}
