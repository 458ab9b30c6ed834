package workflow

import (
	"encoding/json"
	"fmt"
)

// State is the working memory bag a run carries between steps. Steps read
// what they need, add what they produce, and return the bag. Values must be
// JSON-serializable; after every step the engine round-trips the bag
// through JSON, so a resumed run sees exactly the state an uninterrupted
// run would.
type State map[string]any

// ErrorsKey is the append-only list of tolerated step-level failures.
const ErrorsKey = "errors"

// FinalResultKey holds the summary a finalization step leaves behind.
const FinalResultKey = "final_result"

// Clone round-trips the state through JSON, returning an independent copy
// in canonical JSON types.
func (s State) Clone() (State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode state: %w", err)
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("workflow: decode state: %w", err)
	}
	if out == nil {
		out = State{}
	}
	return out, nil
}

// String returns the string at key, or "" when absent or not a string.
func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Bool returns the bool at key, or false when absent or not a bool.
func (s State) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Float returns the number at key. JSON decoding produces float64; int and
// json.Number values are coerced. Anything else yields 0.
func (s State) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

// Int returns the number at key truncated to int.
func (s State) Int(key string) int {
	return int(s.Float(key))
}

// Map returns the nested object at key, or nil.
func (s State) Map(key string) map[string]any {
	v, _ := s[key].(map[string]any)
	return v
}

// Strings returns the string slice at key. JSON decoding produces []any;
// non-string elements are skipped.
func (s State) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// AppendError records a tolerated step failure on the errors list.
func (s State) AppendError(msg string) {
	list := s.Strings(ErrorsKey)
	s[ErrorsKey] = append(list, msg)
}

// ApprovalKey returns the state key a gate's decision is injected under.
// Per-gate keys keep decisions in state (replays stay deterministic) while
// letting later gates suspend independently.
func ApprovalKey(step string) string {
	return "approval_decision:" + step
}

// Approval is the decision that resumes a suspended run.
type Approval struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by,omitempty"`
	Comment    string `json:"comment,omitempty"`
	DecidedAt  string `json:"decided_at,omitempty"`
}

// ApprovalFor extracts the decision injected for the given gate step.
func (s State) ApprovalFor(step string) (Approval, bool) {
	m := s.Map(ApprovalKey(step))
	if m == nil {
		return Approval{}, false
	}
	ap := Approval{
		ApprovedBy: State(m).String("approved_by"),
		Comment:    State(m).String("comment"),
		DecidedAt:  State(m).String("decided_at"),
	}
	ap.Approved = State(m).Bool("approved")
	return ap, true
}

// SetApproval injects a decision for the given gate step.
func (s State) SetApproval(step string, ap Approval) {
	s[ApprovalKey(step)] = map[string]any{
		"approved":    ap.Approved,
		"approved_by": ap.ApprovedBy,
		"comment":     ap.Comment,
		"decided_at":  ap.DecidedAt,
	}
}
