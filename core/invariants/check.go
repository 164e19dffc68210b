package invariants

import (
	"fmt"
	"slices"
	"strings"

	"github.com/davidahmann/contextos/core/digest"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/core/schema/validate"
)

// Check evaluates the default catalog.
func Check(recipe schemarecipe.Recipe, plan schemacontext.ContextPlan, view schemaview.Definition) (schemainvariant.Report, error) {
	return CheckWith(DefaultCatalog(), recipe, plan, view)
}

// CheckWith evaluates catalog in order. The report passes when no violation
// is fatal.
func CheckWith(catalog []schemainvariant.Definition, recipe schemarecipe.Recipe, plan schemacontext.ContextPlan, view schemaview.Definition) (schemainvariant.Report, error) {
	if err := validate.Recipe(recipe); err != nil {
		return schemainvariant.Report{}, err
	}
	if err := validate.Plan(plan); err != nil {
		return schemainvariant.Report{}, err
	}
	if err := ValidateCatalog(catalog); err != nil {
		return schemainvariant.Report{}, err
	}

	violations := []schemainvariant.Violation{}
	for _, definition := range catalog {
		found, err := evaluate(definition, recipe, plan, view)
		if err != nil {
			return schemainvariant.Report{}, err
		}
		violations = append(violations, found...)
	}

	highest := schemainvariant.SeverityInfo
	pass := true
	for _, violation := range violations {
		if violation.Severity.Rank() > highest.Rank() {
			highest = violation.Severity
		}
		if violation.Severity == schemainvariant.SeverityFatal {
			pass = false
		}
	}
	return schemainvariant.Report{
		RecipeID:        recipe.ID,
		PlanID:          plan.PlanID,
		Violations:      violations,
		HighestSeverity: highest,
		Pass:            pass,
	}, nil
}

// ViolatedIDs returns the distinct invariant ids in report order.
func ViolatedIDs(report schemainvariant.Report) []string {
	ids := []string{}
	for _, violation := range report.Violations {
		if !slices.Contains(ids, violation.InvariantID) {
			ids = append(ids, violation.InvariantID)
		}
	}
	return ids
}

func evaluate(definition schemainvariant.Definition, recipe schemarecipe.Recipe, plan schemacontext.ContextPlan, view schemaview.Definition) ([]schemainvariant.Violation, error) {
	violation := func(message string, metadata map[string]any) schemainvariant.Violation {
		return schemainvariant.Violation{
			InvariantID: definition.ID,
			Severity:    definition.Severity,
			Message:     message,
			Metadata:    metadata,
		}
	}
	condition := definition.Condition
	var out []schemainvariant.Violation

	switch condition.Kind {
	case schemainvariant.ConditionAnchorStability:
		if !slices.Contains(condition.ViewIDs, recipe.ViewID) {
			return nil, nil
		}
		selected := map[string]struct{}{}
		for _, item := range plan.SectionItems(schemacontext.SectionAnchors) {
			selected[item.ID] = struct{}{}
		}
		missing := []string{}
		for _, anchor := range plan.StableAnchors {
			if _, ok := selected[anchor.ID]; ok || slices.Contains(missing, anchor.ID) {
				continue
			}
			missing = append(missing, anchor.ID)
		}
		if len(missing) > 0 {
			out = append(out, violation("Missing required anchors: "+strings.Join(missing, ", "), map[string]any{"missing": missing}))
		}

	case schemainvariant.ConditionTokenBudget:
		report := plan.TokenReport
		if report.UsedTotal > report.BudgetTotal {
			out = append(out, violation(fmt.Sprintf("Token budget exceeded: %d/%d", report.UsedTotal, report.BudgetTotal), nil))
		}
		for _, section := range plan.SelectedSections {
			if section.TokenEstimate > section.Budget {
				out = append(out, violation(fmt.Sprintf("Section %s over budget: %d/%d", section.ID, section.TokenEstimate, section.Budget), nil))
			}
		}

	case schemainvariant.ConditionViewPolicyConsistency:
		if view.Policy.Runtime.AllowRag {
			return nil, nil
		}
		if recipe.RuntimePolicy.AllowRag {
			out = append(out, violation("RAG enabled while view disallows it", nil))
		}
		if len(plan.SectionItems(schemacontext.SectionRag)) > 0 {
			out = append(out, violation("RAG items present while view disallows it", nil))
		}

	case schemainvariant.ConditionContextSourceIsolation:
		if !slices.Contains(condition.Modes, recipe.DiagnosticMode()) {
			return nil, nil
		}
		recorded := ""
		if recipe.Diagnostics != nil {
			recorded = recipe.Diagnostics.CandidateSnapshotHash
		}
		if recorded == "" {
			out = append(out, violation("Missing candidate snapshot hash for diagnostic mode", nil))
		} else if planned := plan.InputsSnapshot.CandidateHash; planned != "" && planned != recorded {
			out = append(out, violation("Candidate snapshot hash mismatch", map[string]any{"expected": recorded, "actual": planned}))
		}

	case schemainvariant.ConditionPlannerDeterminism:
		if recipe.Diagnostics == nil || recipe.Diagnostics.ExpectedPlanHash == "" {
			return nil, nil
		}
		actual, err := digest.HashPlan(plan)
		if err != nil {
			return nil, fmt.Errorf("hash plan: %w", err)
		}
		if actual != recipe.Diagnostics.ExpectedPlanHash {
			out = append(out, violation("Planner hash mismatch under deterministic expectation", map[string]any{
				"expected": recipe.Diagnostics.ExpectedPlanHash,
				"actual":   actual,
			}))
		}

	case schemainvariant.ConditionWritebackSafety:
		if view.Policy.Runtime.AllowMemoryWrite && recipe.RuntimePolicy.AllowMemoryWrite {
			return nil, nil
		}
		marker := condition.Marker
		if marker == "" {
			marker = MemoryWriteMarker
		}
		for _, note := range recipe.Decisions.Notes {
			if strings.Contains(note, marker) {
				out = append(out, violation("Memory write noted while policy disallows it", map[string]any{"note": note}))
				break
			}
		}

	default:
		return nil, invalidCatalog("invariant %s has unknown condition %q", definition.ID, condition.Kind)
	}
	return out, nil
}
