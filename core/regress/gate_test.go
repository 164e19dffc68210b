package regress

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/invariants"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemadrift "github.com/davidahmann/contextos/core/schema/v1/drift"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/internal/testutil"
)

func lookupFor(views ...schemaview.Definition) ViewLookup {
	return func(id string) (schemaview.Definition, error) {
		for _, view := range views {
			if view.ID == id {
				return view, nil
			}
		}
		return schemaview.Definition{}, errors.New("unknown view " + id)
	}
}

func baselineInput(t *testing.T) GateInput {
	t.Helper()
	view := testutil.View("plan")
	baseline, baselinePlan := testutil.Turn(t, "baseline", view, testutil.Candidates())
	candidate, candidatePlan := testutil.Turn(t, "candidate", view, testutil.Candidates())
	planHash, err := digest.HashPlan(baselinePlan)
	if err != nil {
		t.Fatalf("hash baseline plan: %v", err)
	}
	return GateInput{
		BaselineRecipe:  baseline,
		CandidateRecipe: candidate,
		BaselinePlan:    baselinePlan,
		CandidatePlan:   candidatePlan,
		Profile: schemaregress.Profile{
			BaselineRecipeID: baseline.ID,
			BaselinePlanHash: planHash,
			DriftThresholds:  DefaultThresholds,
		},
		ViewLookup: lookupFor(view),
	}
}

func TestGatePassesForEquivalentCandidate(t *testing.T) {
	result, err := Gate(baselineInput(t))
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !result.Report.Pass || len(result.Report.Reasons) != 0 {
		t.Fatalf("expected pass, got %+v", result.Report)
	}
	if result.Report.BaselineRecipeID != "baseline" || result.Report.CandidateRecipeID != "candidate" {
		t.Fatalf("unexpected report ids: %+v", result.Report)
	}
	if result.DiffID == "" || len(result.Drift.DriftSignals) != 0 {
		t.Fatalf("expected diff id and no drift, got id=%q drift=%+v", result.DiffID, result.Drift)
	}
	if result.Report.InvariantViolations == nil || result.Report.DriftSummary.Signals == nil || result.Report.DriftSummary.ExceededThresholds == nil {
		t.Fatalf("expected empty non-nil collections: %+v", result.Report)
	}
	expectedID, err := digest.HashValue(result.Diff)
	if err != nil {
		t.Fatalf("hash diff: %v", err)
	}
	if result.DiffID != expectedID {
		t.Fatalf("diff id mismatch: %s vs %s", result.DiffID, expectedID)
	}
}

func TestGateAlwaysReportsBaselineHashMismatch(t *testing.T) {
	input := baselineInput(t)
	input.Profile.BaselinePlanHash = "0000000000000000000000000000000000000000000000000000000000000000"
	result, err := Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if result.Report.Pass || !reflect.DeepEqual(result.Report.Reasons, []string{ReasonBaselineHashMismatch}) {
		t.Fatalf("unexpected reasons: %v", result.Report.Reasons)
	}

	input.CandidatePlan.TokenReport.UsedTotal = input.CandidatePlan.TokenReport.BudgetTotal + 1
	result, err = Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	want := []string{ReasonBaselineHashMismatch, ReasonFatalInvariant, ReasonTokenBudget}
	if !reflect.DeepEqual(result.Report.Reasons, want) {
		t.Fatalf("reasons are not additive: got %v want %v", result.Report.Reasons, want)
	}
}

func TestGateDriftThresholds(t *testing.T) {
	input := baselineInput(t)
	narrow := testutil.View("plan")
	narrow.Policy.Context.Weights.Islands = 0.1
	candidate, candidatePlan := testutil.Turn(t, "candidate", narrow, testutil.Candidates())
	input.CandidateRecipe = candidate
	input.CandidatePlan = candidatePlan
	input.ViewLookup = lookupFor(narrow)
	input.Profile.DriftThresholds = schemaregress.DriftThresholds{IslandShift: 0.5, TokenDistributionShift: 1, AnchorLoss: 0}

	result, err := Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !reflect.DeepEqual(result.Report.DriftSummary.ExceededThresholds, []schemadrift.SignalType{schemadrift.SignalIslandShift}) {
		t.Fatalf("unexpected exceeded thresholds: %v", result.Report.DriftSummary.ExceededThresholds)
	}
	if !reflect.DeepEqual(result.Report.Reasons, []string{"drift thresholds exceeded: island_shift"}) {
		t.Fatalf("unexpected reasons: %v", result.Report.Reasons)
	}
	if len(result.Report.DriftSummary.Signals) != len(result.Drift.DriftSignals) {
		t.Fatalf("summary should mirror every drift signal: %+v", result.Report.DriftSummary)
	}

	input.Profile.DriftThresholds.IslandShift = 1
	result, err = Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !result.Report.Pass {
		t.Fatalf("expected pass under relaxed thresholds, got %v", result.Report.Reasons)
	}
}

func TestGateViewChangeHasNoThreshold(t *testing.T) {
	input := baselineInput(t)
	other := testutil.View("chat")
	candidate, candidatePlan := testutil.Turn(t, "candidate", other, testutil.Candidates())
	input.CandidateRecipe = candidate
	input.CandidatePlan = candidatePlan
	input.ViewLookup = lookupFor(other)

	result, err := Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if len(result.Drift.DriftSignals) != 1 || result.Drift.DriftSignals[0].Type != schemadrift.SignalViewChange {
		t.Fatalf("expected a single view change signal, got %+v", result.Drift.DriftSignals)
	}
	if !result.Report.Pass {
		t.Fatalf("view change alone should not fail the gate: %v", result.Report.Reasons)
	}
}

func TestGateExpectedInvariants(t *testing.T) {
	input := baselineInput(t)
	input.CandidateRecipe.Decisions.Notes = append(input.CandidateRecipe.Decisions.Notes, invariants.MemoryWriteMarker)
	input.Profile.InvariantsExpectedPass = []string{"writeback-safety", "token-budget", "writeback-safety"}

	result, err := Gate(input)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	want := []string{ReasonFatalInvariant, "expected invariants violated: writeback-safety"}
	if !reflect.DeepEqual(result.Report.Reasons, want) {
		t.Fatalf("unexpected reasons: got %v want %v", result.Report.Reasons, want)
	}
	if len(result.Report.InvariantViolations) != 1 || result.Report.InvariantViolations[0].InvariantID != "writeback-safety" {
		t.Fatalf("unexpected violations: %+v", result.Report.InvariantViolations)
	}
}

func TestGateErrors(t *testing.T) {
	input := baselineInput(t)
	input.ViewLookup = nil
	if _, err := Gate(input); err == nil {
		t.Fatalf("expected error without view lookup")
	}

	input = baselineInput(t)
	input.ViewLookup = lookupFor()
	if _, err := Gate(input); err == nil {
		t.Fatalf("expected view lookup failure to surface")
	}

	input = baselineInput(t)
	input.CandidatePlan = schemacontext.ContextPlan{}
	_, err := Gate(input)
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid input for malformed plan, got %v", err)
	}
}
