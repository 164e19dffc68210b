// Package compare plans one candidate pool under several strategy variants
// and quantifies how far their outcomes diverge.
package compare

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/contextos/core/diff"
	"github.com/davidahmann/contextos/core/digest"
	"github.com/davidahmann/contextos/core/drift"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/planner"
	"github.com/davidahmann/contextos/core/prompt"
	"github.com/davidahmann/contextos/core/recipe"
	schemacomparison "github.com/davidahmann/contextos/core/schema/v1/comparison"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
)

const (
	overrideWeights = "weights"
	experimentNote  = "experiment"
)

type Input struct {
	ExperimentID  string
	Message       string
	Candidates    schemacontext.Selection
	StableAnchors []schemacontext.Anchor
	Window        schemacontext.Window
	Variants      []schemacomparison.StrategyVariant
	ViewLookup    func(id string) (schemaview.Definition, error)
	Timestamp     time.Time
}

type variantRun struct {
	group  string
	result schemacomparison.VariantResult
}

// Run plans every variant in order, then diffs and drifts each pair of
// variants that share a planner variant id.
func Run(in Input) (schemacomparison.Report, error) {
	base := strings.TrimSpace(in.ExperimentID)
	if base == "" {
		return schemacomparison.Report{}, coreerrors.InvalidInput(fmt.Errorf("experiment id is required"), coreerrors.CodeInvalidCandidates)
	}
	if len(in.Variants) == 0 {
		return schemacomparison.Report{}, coreerrors.InvalidInput(fmt.Errorf("at least one strategy variant is required"), coreerrors.CodeInvalidCandidates)
	}
	if in.ViewLookup == nil {
		return schemacomparison.Report{}, fmt.Errorf("view lookup is required")
	}
	inputHash, err := digest.HashValue(struct {
		Message    string                  `json:"message"`
		Candidates schemacontext.Selection `json:"candidates"`
	}{Message: in.Message, Candidates: in.Candidates})
	if err != nil {
		return schemacomparison.Report{}, fmt.Errorf("hash comparison input: %w", err)
	}

	runs := make([]variantRun, 0, len(in.Variants))
	for index, variant := range in.Variants {
		run, err := runVariant(in, base, index+1, variant)
		if err != nil {
			return schemacomparison.Report{}, err
		}
		runs = append(runs, run)
	}

	pairwise := make([]schemacomparison.PairwiseComparison, 0)
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			if runs[i].group != runs[j].group {
				continue
			}
			comparison, err := comparePair(runs[i].result, runs[j].result)
			if err != nil {
				return schemacomparison.Report{}, err
			}
			pairwise = append(pairwise, comparison)
		}
	}

	variants := make([]schemacomparison.VariantResult, 0, len(runs))
	for _, run := range runs {
		variants = append(variants, run.result)
	}
	return schemacomparison.Report{
		InputHash:       inputHash,
		Variants:        variants,
		PairwiseDiffs:   pairwise,
		HeuristicWinner: HeuristicWinner(variants),
	}, nil
}

func runVariant(in Input, base string, ordinal int, variant schemacomparison.StrategyVariant) (variantRun, error) {
	view, err := in.ViewLookup(variant.ViewVariantID)
	if err != nil {
		return variantRun{}, fmt.Errorf("lookup view %s: %w", variant.ViewVariantID, err)
	}
	window := in.Window
	kvPolicy := ""
	denied := []string(nil)
	if overrides := variant.PolicyOverrides; overrides != nil {
		if overrides.Weights != nil {
			if view.Freeze != nil && view.Freeze.Planner {
				denied = append(denied, overrideWeights)
			} else {
				view.Policy.Context.Weights = *overrides.Weights
			}
		}
		if overrides.Window != nil {
			window = *overrides.Window
		}
		kvPolicy = overrides.KVPolicy
	}

	plan, err := planner.Plan(planner.Request{
		Message:       in.Message,
		View:          view,
		Candidates:    in.Candidates,
		RequestID:     base + "-" + strconv.Itoa(ordinal),
		StableAnchors: in.StableAnchors,
		Window:        window,
	})
	if err != nil {
		return variantRun{}, err
	}
	planHash, err := digest.HashPlan(plan)
	if err != nil {
		return variantRun{}, fmt.Errorf("hash variant plan: %w", err)
	}
	messages := prompt.Messages(view, plan, in.Message)
	built, err := recipe.Build(recipe.BuildParams{
		ID:        base + "-recipe-" + strconv.Itoa(ordinal),
		RequestID: base,
		Timestamp: in.Timestamp,
		View:      view,
		Plan:      plan,
		ModelPlan: prompt.ModelPlan(view, messages, prompt.ModelOptions{KVPolicy: kvPolicy}),
		Notes:     []string{experimentNote},
		Diagnostics: &schemarecipe.Diagnostics{
			Mode:                  schemarecipe.ModeCompare,
			CandidateSnapshotHash: plan.InputsSnapshot.CandidateHash,
			ExpectedPlanHash:      planHash,
			OverrideDenied:        denied,
		},
	})
	if err != nil {
		return variantRun{}, err
	}
	return variantRun{
		group:  variant.PlannerVariantID,
		result: variantResult(variant.PlannerVariantID+":"+variant.ViewVariantID, built, plan),
	}, nil
}

func variantResult(variantID string, built schemarecipe.Recipe, plan schemacontext.ContextPlan) schemacomparison.VariantResult {
	sections := make([]schemacomparison.SectionSummary, 0, len(plan.SelectedSections))
	for _, section := range plan.SelectedSections {
		sections = append(sections, schemacomparison.SectionSummary{
			ID:     section.ID,
			Used:   section.TokenEstimate,
			Budget: section.Budget,
		})
	}
	return schemacomparison.VariantResult{
		VariantID:       variantID,
		Recipe:          built,
		Plan:            plan,
		TokenReport:     plan.TokenReport,
		SectionsSummary: sections,
		AnchorRetention: AnchorRetention(built, plan),
	}
}

func comparePair(from, to schemacomparison.VariantResult) (schemacomparison.PairwiseComparison, error) {
	recipeDiff, err := diff.Recipes(from.Recipe, to.Recipe, from.Plan, to.Plan)
	if err != nil {
		return schemacomparison.PairwiseComparison{}, err
	}
	driftReport, err := drift.Detect(from.Recipe, to.Recipe, from.Plan, to.Plan)
	if err != nil {
		return schemacomparison.PairwiseComparison{}, err
	}
	diffID, err := digest.HashValue(recipeDiff)
	if err != nil {
		return schemacomparison.PairwiseComparison{}, fmt.Errorf("hash recipe diff: %w", err)
	}
	driftID, err := digest.HashValue(driftReport)
	if err != nil {
		return schemacomparison.PairwiseComparison{}, fmt.Errorf("hash drift report: %w", err)
	}
	return schemacomparison.PairwiseComparison{
		FromVariant:     from.VariantID,
		ToVariant:       to.VariantID,
		RecipeDiffID:    diffID,
		DriftReportID:   driftID,
		DriftConfidence: driftReport.Confidence,
	}, nil
}

// AnchorRetention is the selected anchor count over the plan's stable anchor
// count, treating an empty stable set as one.
func AnchorRetention(built schemarecipe.Recipe, plan schemacontext.ContextPlan) float64 {
	stable := len(plan.StableAnchors)
	if stable == 0 {
		stable = 1
	}
	return float64(len(built.SelectedContext.Anchors)) / float64(stable)
}

// HeuristicWinner prefers the highest anchor retention, then the lowest used
// token total, then the earliest variant.
func HeuristicWinner(variants []schemacomparison.VariantResult) string {
	if len(variants) == 0 {
		return ""
	}
	best := 0
	for index := 1; index < len(variants); index++ {
		candidate, current := variants[index], variants[best]
		switch {
		case candidate.AnchorRetention > current.AnchorRetention:
			best = index
		case candidate.AnchorRetention == current.AnchorRetention && candidate.TokenReport.UsedTotal < current.TokenReport.UsedTotal:
			best = index
		}
	}
	return variants[best].VariantID
}
