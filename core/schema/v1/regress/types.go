package regress

import (
	"time"

	schemadrift "github.com/davidahmann/contextos/core/schema/v1/drift"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
)

type DriftThresholds struct {
	IslandShift            float64 `json:"island_shift" yaml:"island_shift"`
	TokenDistributionShift float64 `json:"token_distribution_shift" yaml:"token_distribution_shift"`
	AnchorLoss             float64 `json:"anchor_loss" yaml:"anchor_loss"`
}

type Profile struct {
	BaselineRecipeID       string          `json:"baseline_recipe_id" yaml:"baseline_recipe_id"`
	BaselinePlanHash       string          `json:"baseline_plan_hash" yaml:"baseline_plan_hash"`
	InvariantsExpectedPass []string        `json:"invariants_expected_pass,omitempty" yaml:"invariants_expected_pass,omitempty"`
	DriftThresholds        DriftThresholds `json:"drift_thresholds" yaml:"drift_thresholds"`
	Description            string          `json:"description,omitempty" yaml:"description,omitempty"`
}

type SignalSummary struct {
	Type      schemadrift.SignalType `json:"type"`
	Magnitude float64                `json:"magnitude"`
}

type DriftSummary struct {
	Signals            []SignalSummary          `json:"signals"`
	ExceededThresholds []schemadrift.SignalType `json:"exceeded_thresholds"`
}

type Report struct {
	BaselineRecipeID    string                      `json:"baseline_recipe_id"`
	CandidateRecipeID   string                      `json:"candidate_recipe_id"`
	InvariantViolations []schemainvariant.Violation `json:"invariant_violations"`
	DriftSummary        DriftSummary                `json:"drift_summary"`
	Pass                bool                        `json:"pass"`
	Reasons             []string                    `json:"reasons"`
}

type SuiteResult struct {
	SchemaID        string       `json:"schema_id"`
	SchemaVersion   string       `json:"schema_version"`
	CreatedAt       time.Time    `json:"created_at"`
	ProducerVersion string       `json:"producer_version"`
	Suite           string       `json:"suite"`
	Status          string       `json:"status"`
	Cases           []CaseResult `json:"cases"`
}

type CaseResult struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Reasons []string       `json:"reasons"`
	Report  *Report        `json:"report,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
