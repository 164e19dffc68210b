package invariants

import (
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	"github.com/goccy/go-yaml"
)

const MemoryWriteMarker = "memory_write"

// DefaultCatalog returns the built-in rules in evaluation order.
func DefaultCatalog() []schemainvariant.Definition {
	return []schemainvariant.Definition{
		{
			ID:              "anchor-stability",
			Description:     "Required anchors must remain present in selected context for critical views.",
			Scope:           schemainvariant.ScopeContext,
			AppliesTo:       schemainvariant.AppliesTo{ViewIDs: []string{"debug", "plan"}},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionAnchorStability, ViewIDs: []string{"debug", "plan"}},
			Severity:        schemainvariant.SeverityFatal,
			RemediationHint: "Ensure required anchors are pinned or widen anchor budget.",
		},
		{
			ID:              "token-budget",
			Description:     "Token usage must not exceed budgets (overall or per-section).",
			Scope:           schemainvariant.ScopePlanner,
			AppliesTo:       schemainvariant.AppliesTo{Global: true},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionTokenBudget},
			Severity:        schemainvariant.SeverityFatal,
			RemediationHint: "Adjust planner weights or reduce candidate count.",
		},
		{
			ID:              "view-policy-consistency",
			Description:     "Runtime policy must respect view policy: RAG disabled means no RAG.",
			Scope:           schemainvariant.ScopeRuntime,
			AppliesTo:       schemainvariant.AppliesTo{Global: true},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionViewPolicyConsistency},
			Severity:        schemainvariant.SeverityFatal,
			RemediationHint: "Ensure runtime flags align with view policy.",
		},
		{
			ID:              "context-source-isolation",
			Description:     "Replay and compare must use fixed candidate pools.",
			Scope:           schemainvariant.ScopeContext,
			AppliesTo:       schemainvariant.AppliesTo{Global: true},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionContextSourceIsolation, Modes: []string{schemarecipe.ModeReplay, schemarecipe.ModeCompare}},
			Severity:        schemainvariant.SeverityWarn,
			RemediationHint: "Reuse stored candidate snapshot for diagnostics.",
		},
		{
			ID:              "planner-determinism",
			Description:     "Planner output should be deterministic under same inputs.",
			Scope:           schemainvariant.ScopePlanner,
			AppliesTo:       schemainvariant.AppliesTo{Global: true},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionPlannerDeterminism},
			Severity:        schemainvariant.SeverityWarn,
			RemediationHint: "Eliminate nondeterministic ordering in planner.",
		},
		{
			ID:              "writeback-safety",
			Description:     "Memory write should not occur when view disallows it.",
			Scope:           schemainvariant.ScopeRuntime,
			AppliesTo:       schemainvariant.AppliesTo{Global: true},
			Condition:       schemainvariant.Condition{Kind: schemainvariant.ConditionWritebackSafety, Marker: MemoryWriteMarker},
			Severity:        schemainvariant.SeverityFatal,
			RemediationHint: "Disable memory writeback or update view policy.",
		},
	}
}

// LoadCatalog reads a YAML or JSON catalog of the form {invariants: [...]}.
func LoadCatalog(path string) ([]schemainvariant.Definition, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("invariant catalog path is required")
	}
	// #nosec G304 -- catalog path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("read invariant catalog: %w", err), coreerrors.CategoryIOFailure, "catalog_unreadable", "check the catalog path", false)
	}
	var catalog schemainvariant.Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, coreerrors.InvalidInput(fmt.Errorf("parse invariant catalog: %w", err), coreerrors.CodeInvalidProfile)
	}
	if err := ValidateCatalog(catalog.Invariants); err != nil {
		return nil, err
	}
	return catalog.Invariants, nil
}

// ValidateCatalog rejects duplicate ids, unknown severities and unknown
// condition kinds.
func ValidateCatalog(catalog []schemainvariant.Definition) error {
	seen := map[string]struct{}{}
	for index, definition := range catalog {
		id := strings.TrimSpace(definition.ID)
		if id == "" {
			return invalidCatalog("invariant %d has no id", index)
		}
		if _, ok := seen[id]; ok {
			return invalidCatalog("duplicate invariant id %s", id)
		}
		seen[id] = struct{}{}
		if definition.Severity.Rank() == 0 {
			return invalidCatalog("invariant %s has unknown severity %q", id, definition.Severity)
		}
		if !knownKind(definition.Condition.Kind) {
			return invalidCatalog("invariant %s has unknown condition %q", id, definition.Condition.Kind)
		}
	}
	return nil
}

func knownKind(kind schemainvariant.ConditionKind) bool {
	switch kind {
	case schemainvariant.ConditionAnchorStability,
		schemainvariant.ConditionTokenBudget,
		schemainvariant.ConditionViewPolicyConsistency,
		schemainvariant.ConditionContextSourceIsolation,
		schemainvariant.ConditionPlannerDeterminism,
		schemainvariant.ConditionWritebackSafety:
		return true
	default:
		return false
	}
}

func invalidCatalog(format string, args ...any) error {
	return coreerrors.InvalidInput(fmt.Errorf("invalid invariant catalog: "+format, args...), coreerrors.CodeInvalidProfile)
}
