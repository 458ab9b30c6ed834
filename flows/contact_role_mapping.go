package flows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aparnap2/internal-flow-ops/workflow"
)

const contactsTable = "Contacts"

// Document templates provisioned per inferred role. Category templates are
// always included; functional-area extras stack on top.
var (
	roleTemplates = map[string][]string{
		"Decision Maker": {"Executive Briefing", "ROI Calculator"},
		"Influencer":     {"Product Overview", "Comparison Guide"},
		"End User":       {"Getting Started Guide", "Feature Walkthrough"},
	}
	areaTemplates = map[string][]string{
		"Engineering": {"Technical Architecture", "API Reference"},
		"Sales":       {"Pricing Sheet", "Case Studies"},
	}
)

// NewContactRoleMapping builds the contact role mapping graph: a linear
// pipeline that classifies a new contact's role, links it to its account,
// and provisions a permission checklist and document templates.
func NewContactRoleMapping(c Clients) *workflow.Graph {
	return workflow.NewBuilder(ContactRoleMapping).
		Step("extract_contact_data", extractContactData).
		Step("infer_role", inferContactRole(c)).
		Step("link_account", linkContactAccount(c)).
		Step("build_permission_checklist", buildPermissionChecklist).
		Step("attach_templates", attachRoleTemplates(c)).
		Step("finalize_role_mapping", finalizeRoleMapping).
		Entry("extract_contact_data").
		Edge("extract_contact_data", "infer_role").
		Edge("infer_role", "link_account").
		Edge("link_account", "build_permission_checklist").
		Edge("build_permission_checklist", "attach_templates").
		Edge("attach_templates", "finalize_role_mapping").
		Edge("finalize_role_mapping", workflow.End).
		MustCompile()
}

func extractContactData(_ context.Context, st workflow.State) (workflow.State, error) {
	props := detailProperties(st)

	st["contact_data"] = map[string]any{
		"crm_id":          detailID(st),
		"email":           props["email"],
		"first_name":      props["firstname"],
		"last_name":       props["lastname"],
		"job_title":       props["jobtitle"],
		"phone":           props["phone"],
		"company":         props["company"],
		"lifecycle_stage": props["lifecyclestage"],
		"lead_source":     props["hs_lead_source"],
		"seniority":       props["hs_seniority"],
		"department":      props["department"],
	}
	return st, nil
}

// inferContactRole classifies the contact from its job title. Like every
// model step, a bad answer falls back to a conservative default instead of
// failing the run.
func inferContactRole(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("contact_data"))

		prompt := fmt.Sprintf(
			"Classify this contact's role in the buying process. Name: %s %s, Job Title: %s, Department: %s, Seniority: %s, Company: %s.\n"+
				"Return JSON with fields: role_category (Decision Maker/Influencer/End User/Unknown), functional_area, seniority_level, responsibilities (list), decision_authority (1-10), engagement_strategy, permissions_needed (list).",
			data.String("first_name"), data.String("last_name"),
			data.String("job_title"), data.String("department"),
			data.String("seniority"), data.String("company"),
		)

		role := fallbackRole(data)
		out, err := c.Model.Complete(ctx, "You are an expert in B2B sales and organizational analysis.", prompt)
		if err != nil {
			c.log().Warn("role inference unavailable", slog.String("error", err.Error()))
			st.AppendError(fmt.Sprintf("role inference failed: %v", err))
		} else if parsed, ok := parseModelJSON(out); ok && parsed["role_category"] != nil {
			role = parsed
		}

		st["role"] = role
		return st, nil
	}
}

func fallbackRole(contact workflow.State) map[string]any {
	area := contact.String("department")
	if area == "" {
		area = "Unknown"
	}
	seniority := contact.String("seniority")
	if seniority == "" {
		seniority = "Unknown"
	}
	return map[string]any{
		"role_category":       "Unknown",
		"functional_area":     area,
		"seniority_level":     seniority,
		"responsibilities":    []string{"Role analysis failed"},
		"decision_authority":  5,
		"engagement_strategy": "Standard approach",
		"permissions_needed":  []string{"Basic access"},
	}
}

func linkContactAccount(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		data := workflow.State(st.Map("contact_data"))
		role := workflow.State(st.Map("role"))

		companyName := data.String("company")
		companies := associatedObjects(st, "companies")
		if len(companies) > 0 {
			st["linked_company_id"] = workflow.State(companies[0]).String("id")
			if name := objectProperty(companies[0], "name"); name != "" {
				companyName = name
			}
		}

		name := strings.TrimSpace(data.String("first_name") + " " + data.String("last_name"))
		rec, err := c.Tables.CreateRecord(ctx, contactsTable, map[string]any{
			"Name":            name,
			"Email":           data.String("email"),
			"Job Title":       data.String("job_title"),
			"Company":         companyName,
			"Role Category":   role.String("role_category"),
			"Functional Area": role.String("functional_area"),
			"Seniority":       role.String("seniority_level"),
			"HubSpot ID":      data.String("crm_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("flows: create contact record: %w", err)
		}
		st["contact_record_id"] = rec.ID
		return st, nil
	}
}

func buildPermissionChecklist(_ context.Context, st workflow.State) (workflow.State, error) {
	role := workflow.State(st.Map("role"))

	checklist := []string{"CRM Access", "Email Marketing Consent"}
	if role.String("role_category") == "Decision Maker" {
		checklist = append(checklist, "Executive Communication", "Pricing Access")
	}
	if role.String("functional_area") == "Engineering" {
		checklist = append(checklist, "Technical Docs", "Demo Environment")
	}

	st["permission_checklist"] = checklist
	return st, nil
}

func attachRoleTemplates(c Clients) workflow.StepFunc {
	return func(ctx context.Context, st workflow.State) (workflow.State, error) {
		role := workflow.State(st.Map("role"))

		templates := append([]string(nil), roleTemplates[role.String("role_category")]...)
		templates = append(templates, areaTemplates[role.String("functional_area")]...)

		if recID := st.String("contact_record_id"); recID != "" {
			if _, err := c.Tables.UpdateRecord(ctx, contactsTable, recID, map[string]any{
				"Drive Templates": templates,
			}); err != nil {
				return nil, fmt.Errorf("flows: attach templates: %w", err)
			}
		}
		st["drive_templates"] = templates
		return st, nil
	}
}

func finalizeRoleMapping(_ context.Context, st workflow.State) (workflow.State, error) {
	st[workflow.FinalResultKey] = map[string]any{
		"status":                "completed",
		"contact_data":          st.Map("contact_data"),
		"role":                  st.Map("role"),
		"contact_record_id":     st.String("contact_record_id"),
		"permission_checklist":  st.Strings("permission_checklist"),
		"drive_templates":       st.Strings("drive_templates"),
		"total_checklist_items": len(st.Strings("permission_checklist")),
		"completed_at":          nowRFC3339(),
	}
	return st, nil
}
