package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

// Deals whose amount rises above this need procurement approval before a
// purchase order is cut.
const procurementThreshold = 10_000.0

const (
	procurementTable = "Procurement"
	purchaseOrders   = "PurchaseOrders"
)

const (
	procAssess workflow.Decision = "assess"
	procSkip   workflow.Decision = "skip"

	procApproved workflow.Decision = "approved"
	procRejected workflow.Decision = "rejected"
)

// NewProcurementApproval builds the procurement approval graph: when a
// deal's amount change crosses the threshold, assess risk, assemble the
// approver chain, record the procurement request, suspend for sign-off,
// and cut a purchase order on approval. Rejections finalize without one.
func NewProcurementApproval(c Clients) *workflow.Graph {
	return workflow.NewBuilder(ProcurementApproval).
		Step("extract_deal_data", extractDealData).
		Step("assess_risk", assessProcurementRisk(c)).
		Step("determine_approval_requirements", determineApprovalRequirements).
		Step("create_procurement_record", createProcurementRecord(c)).
		Step("prepare_approval_request", prepareApprovalRequest(c)).
		Gate("wait_for_approval", recordGateDecision("wait_for_approval")).
		Step("create_po_record", createPORecord(c)).
		Step("finalize_procurement", finalizeProcurement).
		Entry("extract_deal_data").
		Branch("extract_deal_data",
			func(st workflow.State) workflow.Decision {
				if eventField(st, "property_name") != "amount" {
					return procSkip
				}
				if floatOr0(eventField(st, "property_value")) > procurementThreshold {
					return procAssess
				}
				return procSkip
			},
			[]workflow.Decision{procAssess, procSkip},
			map[workflow.Decision]string{
				procAssess: "assess_risk",
				procSkip:   workflow.End,
			}).
		Edge("assess_risk", "determine_approval_requirements").
		Edge("determine_approval_requirements", "create_procurement_record").
		Edge("create_procurement_record", "prepare_approval_request").
		Edge("prepare_approval_request", "wait_for_approval").
		Branch("wait_for_approval",
			func(st workflow.State) workflow.Decision {
				if st.Bool("is_approved") {
					return procApproved
				}
				return procRejected
			},
			[]workflow.Decision{procApproved, procRejected},
			map[workflow.Decision]string{
				procApproved: "create_po_record",
				procRejected: "finalize_procurement",
			}).
		Edge("create_po_record", "finalize_procurement").
		Edge("finalize_procurement", workflow.End).
		MustCompile()
}

func assessProcurementRisk(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))

		prompt := fmt.Sprintf(
			"Perform a risk assessment for this deal. Deal: %s, Amount: %s, Stage: %s, Type: %s.\n"+
				"Return JSON with fields: risk_level (LOW/MEDIUM/HIGH/CRITICAL), customer_risk, market_risk, contract_risk, recommended_approval_level, mitigation_strategies (list), red_flags (list).",
			data.String("name"), data.String("amount"), data.String("stage"), data.String("deal_type"),
		)

		assessment := map[string]any{
			"risk_level":                 "MEDIUM",
			"customer_risk":              "MODERATE",
			"market_risk":                "LOW",
			"contract_risk":              "LOW",
			"recommended_approval_level": "MANAGER",
			"mitigation_strategies":      []string{"Standard contract review"},
			"red_flags":                  []string{},
		}
		out, err := c.Model.Complete(ctx, "You are an expert in financial risk assessment and procurement approval.", prompt)
		if err != nil {
			c.log().Warn("risk assessment unavailable", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("risk assessment failed: %v", err))
		} else if parsed, ok := parseModelJSON(out); ok && parsed["risk_level"] != nil {
			assessment = parsed
		}

		st["risk_assessment"] = assessment
		return st, nil
	}
}

// determineApprovalRequirements snapshots the policy in force and picks the
// approver chain from the risk level and deal amount. The snapshot travels
// with the approval request so a later policy change cannot retroactively
// alter what the approver saw.
func determineApprovalRequirements(_ context.Context, st workflow.State) (workflow.State, error) {
	risk := workflow.State(st.Map("risk_assessment"))
	data := workflow.State(st.Map("deal_data"))

	level := strings.ToUpper(risk.String("risk_level"))
	amount := floatOr0(data.String("amount"))

	st["policy_snapshot"] = map[string]any{
		"threshold":            procurementThreshold,
		"risk_level":           level,
		"approval_required":    true,
		"recommended_approver": risk.String("recommended_approval_level"),
		"effective_at":         nowRFC3339(),
	}

	var approvers []map[string]any
	switch {
	case level == "HIGH" || level == "CRITICAL" || amount > 50_000:
		approvers = append(approvers, approver("Head of Sales", "head-sales@company.com", "EXECUTIVE"))
	case level == "MEDIUM" || amount > 25_000:
		approvers = append(approvers, approver("Sales Manager", "sales-manager@company.com", "MANAGER"))
	default:
		approvers = append(approvers, approver("Sales Director", "sales-dir@company.com", "SENIOR_MANAGER"))
	}
	if level == "HIGH" || level == "CRITICAL" {
		approvers = append(approvers, approver("Finance Manager", "finance@company.com", "MANAGER"))
	}

	st["requires_approval"] = true
	st["approvers"] = approvers
	return st, nil
}

func approver(name, email, level string) map[string]any {
	return map[string]any{
		"name":     name,
		"email":    email,
		"level":    level,
		"required": true,
	}
}

func createProcurementRecord(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))
		risk := workflow.State(st.Map("risk_assessment"))

		redFlags, _ := json.Marshal(risk["red_flags"])
		rec, err := c.Tables.CreateRecord(ctx, procurementTable, map[string]any{
			"Deal Name":  data.String("name"),
			"Deal ID":    data.String("crm_id"),
			"Amount":     data.String("amount"),
			"Stage":      data.String("stage"),
			"Risk Level": risk.String("risk_level"),
			"Red Flags":  string(redFlags),
			"Status":     "PENDING_APPROVAL",
			"Created At": nowRFC3339(),
		})
		if err != nil {
			return nil, fmt.Errorf("flows: create procurement record: %w", err)
		}
		st["procurement_record_id"] = rec.ID
		return st, nil
	}
}

func prepareApprovalRequest(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))
		risk := st.Map("risk_assessment")
		approvers, _ := st["approvers"].([]any)

		request := map[string]any{
			"deal_id":            data.String("crm_id"),
			"deal_name":          data.String("name"),
			"amount":             floatOr0(data.String("amount")),
			"risk_assessment":    risk,
			"policy_snapshot":    st.Map("policy_snapshot"),
			"approvers":          st["approvers"],
			"required_approvals": len(approvers),
			"created_at":         nowRFC3339(),
		}
		st["approval_data"] = request

		recID := st.String("procurement_record_id")
		requestJSON, _ := json.Marshal(request)
		approversJSON, _ := json.Marshal(st["approvers"])
		if _, err := c.Tables.UpdateRecord(ctx, procurementTable, recID, map[string]any{
			"Approval Request": string(requestJSON),
			"Approvers":        string(approversJSON),
		}); err != nil {
			return nil, fmt.Errorf("flows: prepare approval request: %w", err)
		}
		return st, nil
	}
}

func createPORecord(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("deal_data"))
		procID := st.String("procurement_record_id")

		rec, err := c.Tables.CreateRecord(ctx, purchaseOrders, map[string]any{
			"Procurement Record ID": procID,
			"Deal ID":               data.String("crm_id"),
			"Deal Name":             data.String("name"),
			"Amount":                data.String("amount"),
			"Approved By":           st.String("approved_by"),
			"Approved At":           nowRFC3339(),
			"Status":                "CREATED",
		})
		if err != nil {
			return nil, fmt.Errorf("flows: create po record: %w", err)
		}
		st["po_record_id"] = rec.ID

		if _, err := c.Tables.UpdateRecord(ctx, procurementTable, procID, map[string]any{
			"PO Record ID": rec.ID,
			"Status":       "APPROVED_AND_PO_CREATED",
		}); err != nil {
			return nil, fmt.Errorf("flows: update procurement record: %w", err)
		}
		return st, nil
	}
}

func finalizeProcurement(_ context.Context, st workflow.State) (workflow.State, error) {
	status := "completed"
	if !st.Bool("is_approved") {
		status = "rejected"
	}
	st[workflow.FinalResultKey] = map[string]any{
		"status":                status,
		"deal_data":             st.Map("deal_data"),
		"risk_assessment":       st.Map("risk_assessment"),
		"procurement_record_id": st.String("procurement_record_id"),
		"po_record_id":          st.String("po_record_id"),
		"is_approved":           st.Bool("is_approved"),
		"approvers":             st["approvers"],
		"completed_at":          nowRFC3339(),
	}
	return st, nil
}
