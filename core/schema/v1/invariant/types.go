package invariant

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityFatal Severity = "fatal"
)

// Rank orders severities info < warn < fatal. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityFatal:
		return 3
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

type Scope string

const (
	ScopeView    Scope = "view"
	ScopePlanner Scope = "planner"
	ScopeContext Scope = "context"
	ScopeRuntime Scope = "runtime"
)

type Violation struct {
	InvariantID string         `json:"invariant_id"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Report struct {
	RecipeID        string      `json:"recipe_id"`
	PlanID          string      `json:"plan_id"`
	Violations      []Violation `json:"violations"`
	HighestSeverity Severity    `json:"highest_severity"`
	Pass            bool        `json:"pass"`
}

type ConditionKind string

const (
	ConditionAnchorStability        ConditionKind = "anchor_stability"
	ConditionTokenBudget            ConditionKind = "token_budget"
	ConditionViewPolicyConsistency  ConditionKind = "view_policy_consistency"
	ConditionContextSourceIsolation ConditionKind = "context_source_isolation"
	ConditionPlannerDeterminism     ConditionKind = "planner_determinism"
	ConditionWritebackSafety        ConditionKind = "writeback_safety"
)

// Condition is a tagged union keyed by Kind. ViewIDs applies to
// anchor_stability, Modes to context_source_isolation and Marker to
// writeback_safety.
type Condition struct {
	Kind    ConditionKind `json:"type" yaml:"type"`
	ViewIDs []string      `json:"view_ids,omitempty" yaml:"view_ids,omitempty"`
	Modes   []string      `json:"modes,omitempty" yaml:"modes,omitempty"`
	Marker  string        `json:"marker,omitempty" yaml:"marker,omitempty"`
}

type AppliesTo struct {
	ViewIDs []string `json:"view_ids,omitempty" yaml:"view_ids,omitempty"`
	Global  bool     `json:"global" yaml:"global"`
}

type Definition struct {
	ID              string    `json:"id" yaml:"id"`
	Description     string    `json:"description" yaml:"description"`
	Scope           Scope     `json:"scope" yaml:"scope"`
	AppliesTo       AppliesTo `json:"applies_to" yaml:"applies_to"`
	Condition       Condition `json:"condition" yaml:"condition"`
	Severity        Severity  `json:"severity" yaml:"severity"`
	RemediationHint string    `json:"remediation_hint" yaml:"remediation_hint"`
}

type Catalog struct {
	Invariants []Definition `json:"invariants" yaml:"invariants"`
}
