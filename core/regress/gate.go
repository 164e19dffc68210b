package regress

import (
	"fmt"
	"strings"

	"github.com/davidahmann/contextos/core/diff"
	"github.com/davidahmann/contextos/core/digest"
	"github.com/davidahmann/contextos/core/drift"
	"github.com/davidahmann/contextos/core/invariants"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemadiff "github.com/davidahmann/contextos/core/schema/v1/diff"
	schemadrift "github.com/davidahmann/contextos/core/schema/v1/drift"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
)

const (
	ReasonBaselineHashMismatch = "baseline plan hash mismatch"
	ReasonFatalInvariant       = "fatal invariant violation"
	ReasonTokenBudget          = "token budget regression"

	reasonDriftPrefix    = "drift thresholds exceeded: "
	reasonExpectedPrefix = "expected invariants violated: "
)

// ViewLookup resolves the view a candidate recipe was produced under.
type ViewLookup func(id string) (schemaview.Definition, error)

type GateInput struct {
	BaselineRecipe  schemarecipe.Recipe
	CandidateRecipe schemarecipe.Recipe
	BaselinePlan    schemacontext.ContextPlan
	CandidatePlan   schemacontext.ContextPlan
	Profile         schemaregress.Profile
	ViewLookup      ViewLookup
	// Catalog overrides the default invariant catalog when non-nil.
	Catalog []schemainvariant.Definition
}

type GateResult struct {
	Report     schemaregress.Report
	Diff       schemadiff.RecipeDiff
	DiffID     string
	Drift      schemadrift.Report
	Invariants schemainvariant.Report
}

// Gate compares a candidate run against a baseline profile. Every check
// contributes its own reason; the report passes only when none fire.
func Gate(in GateInput) (GateResult, error) {
	if in.ViewLookup == nil {
		return GateResult{}, fmt.Errorf("view lookup is required")
	}
	baselinePlanHash, err := digest.HashPlan(in.BaselinePlan)
	if err != nil {
		return GateResult{}, fmt.Errorf("hash baseline plan: %w", err)
	}
	recipeDiff, err := diff.Recipes(in.BaselineRecipe, in.CandidateRecipe, in.BaselinePlan, in.CandidatePlan)
	if err != nil {
		return GateResult{}, err
	}
	diffID, err := digest.HashValue(recipeDiff)
	if err != nil {
		return GateResult{}, fmt.Errorf("hash recipe diff: %w", err)
	}
	driftReport, err := drift.Detect(in.BaselineRecipe, in.CandidateRecipe, in.BaselinePlan, in.CandidatePlan)
	if err != nil {
		return GateResult{}, err
	}
	view, err := in.ViewLookup(in.CandidateRecipe.ViewID)
	if err != nil {
		return GateResult{}, fmt.Errorf("lookup view %s: %w", in.CandidateRecipe.ViewID, err)
	}
	catalog := in.Catalog
	if catalog == nil {
		catalog = invariants.DefaultCatalog()
	}
	invariantReport, err := invariants.CheckWith(catalog, in.CandidateRecipe, in.CandidatePlan, view)
	if err != nil {
		return GateResult{}, err
	}

	summary := schemaregress.DriftSummary{
		Signals:            make([]schemaregress.SignalSummary, 0, len(driftReport.DriftSignals)),
		ExceededThresholds: make([]schemadrift.SignalType, 0),
	}
	for _, signal := range driftReport.DriftSignals {
		summary.Signals = append(summary.Signals, schemaregress.SignalSummary{Type: signal.Type, Magnitude: signal.Magnitude})
		if limit, ok := thresholdFor(in.Profile.DriftThresholds, signal.Type); ok && signal.Magnitude > limit {
			summary.ExceededThresholds = append(summary.ExceededThresholds, signal.Type)
		}
	}

	reasons := make([]string, 0)
	if baselinePlanHash != in.Profile.BaselinePlanHash {
		reasons = append(reasons, ReasonBaselineHashMismatch)
	}
	if !invariantReport.Pass {
		reasons = append(reasons, ReasonFatalInvariant)
	}
	if len(summary.ExceededThresholds) > 0 {
		names := make([]string, 0, len(summary.ExceededThresholds))
		for _, signalType := range summary.ExceededThresholds {
			names = append(names, string(signalType))
		}
		reasons = append(reasons, reasonDriftPrefix+strings.Join(names, ", "))
	}
	if in.CandidatePlan.TokenReport.UsedTotal > in.CandidatePlan.TokenReport.BudgetTotal {
		reasons = append(reasons, ReasonTokenBudget)
	}
	if broken := brokenExpectations(in.Profile.InvariantsExpectedPass, invariantReport); len(broken) > 0 {
		reasons = append(reasons, reasonExpectedPrefix+strings.Join(broken, ", "))
	}

	violations := invariantReport.Violations
	if violations == nil {
		violations = []schemainvariant.Violation{}
	}
	return GateResult{
		Report: schemaregress.Report{
			BaselineRecipeID:    in.Profile.BaselineRecipeID,
			CandidateRecipeID:   in.CandidateRecipe.ID,
			InvariantViolations: violations,
			DriftSummary:        summary,
			Pass:                len(reasons) == 0,
			Reasons:             reasons,
		},
		Diff:       recipeDiff,
		DiffID:     diffID,
		Drift:      driftReport,
		Invariants: invariantReport,
	}, nil
}

// view_change has no threshold and never fails the gate on its own.
func thresholdFor(thresholds schemaregress.DriftThresholds, signalType schemadrift.SignalType) (float64, bool) {
	switch signalType {
	case schemadrift.SignalIslandShift:
		return thresholds.IslandShift, true
	case schemadrift.SignalTokenDistributionShift:
		return thresholds.TokenDistributionShift, true
	case schemadrift.SignalAnchorLoss:
		return thresholds.AnchorLoss, true
	default:
		return 0, false
	}
}

func brokenExpectations(expected []string, report schemainvariant.Report) []string {
	if len(expected) == 0 {
		return nil
	}
	violated := map[string]struct{}{}
	for _, id := range invariants.ViolatedIDs(report) {
		violated[id] = struct{}{}
	}
	broken := make([]string, 0)
	for _, id := range uniqueStrings(expected) {
		if _, ok := violated[id]; ok {
			broken = append(broken, id)
		}
	}
	return broken
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
