package comparison

import (
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

type PolicyOverrides struct {
	Weights  *schemacontext.Weights `json:"weights,omitempty" yaml:"weights,omitempty"`
	Window   *schemacontext.Window  `json:"window,omitempty" yaml:"window,omitempty"`
	KVPolicy string                 `json:"kv_policy,omitempty" yaml:"kv_policy,omitempty"`
}

type StrategyVariant struct {
	PlannerVariantID string           `json:"planner_variant_id" yaml:"planner_variant_id"`
	ViewVariantID    string           `json:"view_variant_id" yaml:"view_variant_id"`
	PolicyOverrides  *PolicyOverrides `json:"policy_overrides,omitempty" yaml:"policy_overrides,omitempty"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
}

type SectionSummary struct {
	ID     string `json:"id"`
	Used   int    `json:"used"`
	Budget int    `json:"budget"`
}

type VariantResult struct {
	VariantID       string                    `json:"variant_id"`
	Recipe          schemarecipe.Recipe       `json:"recipe"`
	Plan            schemacontext.ContextPlan `json:"plan"`
	TokenReport     schemacontext.TokenReport `json:"token_report"`
	SectionsSummary []SectionSummary          `json:"sections_summary"`
	AnchorRetention float64                   `json:"anchor_retention"`
}

type PairwiseComparison struct {
	FromVariant     string  `json:"from_variant"`
	ToVariant       string  `json:"to_variant"`
	RecipeDiffID    string  `json:"recipe_diff_id"`
	DriftReportID   string  `json:"drift_report_id"`
	DriftConfidence float64 `json:"drift_confidence"`
}

type Report struct {
	InputHash       string               `json:"input_hash"`
	Variants        []VariantResult      `json:"variants"`
	PairwiseDiffs   []PairwiseComparison `json:"pairwise_diffs"`
	HeuristicWinner string               `json:"heuristic_winner,omitempty"`
}
