package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
)

const (
	Version           = "v1"
	LowScoreThreshold = 0.2

	noteOverrideExclude = "override-exclude"
	notePolicyDeny      = "policy-deny"
)

type Exclusions struct {
	Islands []string `json:"islands,omitempty" yaml:"islands,omitempty"`
}

type Request struct {
	Message       string
	View          schemaview.Definition
	Candidates    schemacontext.Selection
	RequestID     string
	StableAnchors []schemacontext.Anchor
	Window        schemacontext.Window
	Exclusions    *Exclusions
}

type sectionSpec struct {
	id       string
	label    string
	itemType schemacontext.ItemType
	weight   float64
	items    []schemacontext.ContextItem
	sorted   bool
}

type sectionResult struct {
	selected []schemacontext.ContextItem
	dropped  []schemacontext.DroppedItem
	used     int
}

// Plan selects context items for one turn. It is a pure function of req:
// identical requests yield identical plans and plan hashes.
func Plan(req Request) (schemacontext.ContextPlan, error) {
	if err := validateRequest(req); err != nil {
		return schemacontext.ContextPlan{}, err
	}
	maxTokens := req.View.Policy.Context.MaxTokens
	weights := req.View.Policy.Context.Weights
	candidates := req.Candidates

	excluded := map[string]struct{}{}
	if req.Exclusions != nil {
		for _, id := range req.Exclusions.Islands {
			excluded[id] = struct{}{}
		}
	}

	specs := []sectionSpec{
		{id: schemacontext.SectionAnchors, label: "Anchors", itemType: schemacontext.ItemAnchor, weight: weights.Anchors, items: candidates.Anchors},
		{id: schemacontext.SectionStream, label: "Stream", itemType: schemacontext.ItemStream, weight: weights.Stream, items: candidates.Stream, sorted: true},
		{id: schemacontext.SectionIslands, label: "Islands", itemType: schemacontext.ItemIsland, weight: weights.Islands, items: candidates.Islands, sorted: true},
		{id: schemacontext.SectionMemory, label: "Memory", itemType: schemacontext.ItemMemory, weight: weights.Memory, items: candidates.Memory, sorted: true},
		{id: schemacontext.SectionRag, label: "RAG", itemType: schemacontext.ItemRag, weight: weights.Rag, items: candidates.Rag, sorted: true},
	}

	plan := schemacontext.ContextPlan{
		PlanID:           req.RequestID + "-plan",
		RequestID:        req.RequestID,
		PlannerVersion:   Version,
		SelectedSections: make([]schemacontext.Section, 0, len(specs)),
		StableAnchors:    copyAnchors(req.StableAnchors),
		TokenReport: schemacontext.TokenReport{
			BudgetTotal: maxTokens,
			ByBucket:    make(map[string]schemacontext.BucketUsage, len(specs)),
		},
		DroppedItems: []schemacontext.DroppedItem{},
	}

	for _, spec := range specs {
		budget := int(math.Floor(float64(maxTokens) * spec.weight))
		items := spec.items
		if spec.sorted {
			items = sortByScore(items)
		}

		var exclusionDrops []schemacontext.DroppedItem
		if spec.id == schemacontext.SectionIslands && len(excluded) > 0 {
			kept := make([]schemacontext.ContextItem, 0, len(items))
			for _, item := range items {
				if _, ok := excluded[item.ID]; ok {
					exclusionDrops = append(exclusionDrops, dropped(item, schemacontext.DropDeniedByPolicy, noteOverrideExclude))
					continue
				}
				kept = append(kept, item)
			}
			items = kept
		}

		denied := spec.id == schemacontext.SectionRag && !req.View.Policy.Runtime.AllowRag
		result := planSection(items, spec.itemType, budget, denied)

		plan.SelectedSections = append(plan.SelectedSections, schemacontext.Section{
			ID:            spec.id,
			Label:         spec.label,
			Items:         result.selected,
			TokenEstimate: result.used,
			Budget:        budget,
		})
		plan.TokenReport.ByBucket[spec.id] = schemacontext.BucketUsage{Budget: budget, Used: result.used}
		plan.TokenReport.UsedTotal += result.used
		plan.DroppedItems = append(plan.DroppedItems, result.dropped...)
		plan.DroppedItems = append(plan.DroppedItems, exclusionDrops...)
	}

	candidateHash, err := digest.HashCandidates(candidates)
	if err != nil {
		return schemacontext.ContextPlan{}, fmt.Errorf("hash candidates: %w", err)
	}
	plan.InputsSnapshot = schemacontext.InputsSnapshot{
		CandidateCounts: schemacontext.CandidateCounts{
			Anchors: len(candidates.Anchors),
			Stream:  len(candidates.Stream),
			Islands: len(candidates.Islands),
			Memory:  len(candidates.Memory),
			Rag:     len(candidates.Rag),
		},
		Weights:       weights,
		Window:        req.Window,
		Thresholds:    schemacontext.Thresholds{LowScore: LowScoreThreshold},
		CandidateHash: candidateHash,
	}
	return plan, nil
}

// EstimateTokens approximates token cost as a quarter of the rune count of
// the whitespace-collapsed content, rounded up.
func EstimateTokens(content string) int {
	normalized := strings.Join(strings.Fields(content), " ")
	runes := utf8.RuneCountInString(normalized)
	return (runes + 3) / 4
}

// ItemCost is the explicit token count when set, otherwise the estimate.
func ItemCost(item schemacontext.ContextItem) int {
	if item.Tokens != nil {
		return *item.Tokens
	}
	return EstimateTokens(item.Content)
}

func planSection(items []schemacontext.ContextItem, itemType schemacontext.ItemType, budget int, denied bool) sectionResult {
	result := sectionResult{selected: []schemacontext.ContextItem{}}
	seen := map[string]struct{}{}
	for _, item := range items {
		if denied {
			result.dropped = append(result.dropped, dropped(item, schemacontext.DropDeniedByPolicy, notePolicyDeny))
			continue
		}
		cost := ItemCost(item)
		if reason, drop := dropReason(item, itemType, cost, result.used, budget, seen); drop {
			result.dropped = append(result.dropped, dropped(item, reason, string(reason)))
			continue
		}
		resolved := copyItem(item)
		resolved.Tokens = &cost
		result.selected = append(result.selected, resolved)
		seen[item.ID] = struct{}{}
		result.used += cost
	}
	return result
}

func dropReason(item schemacontext.ContextItem, itemType schemacontext.ItemType, cost, used, budget int, seen map[string]struct{}) (schemacontext.DropReason, bool) {
	if item.Type != "" && item.Type != itemType {
		return schemacontext.DropInvalidSource, true
	}
	if _, ok := seen[item.ID]; ok {
		return schemacontext.DropDuplicate, true
	}
	if item.Score != nil && *item.Score < LowScoreThreshold {
		return schemacontext.DropLowScore, true
	}
	if used+cost > budget {
		return schemacontext.DropBudgetExceeded, true
	}
	return "", false
}

func sortByScore(items []schemacontext.ContextItem) []schemacontext.ContextItem {
	sorted := make([]schemacontext.ContextItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scoreOf(sorted[i]) > scoreOf(sorted[j])
	})
	return sorted
}

func scoreOf(item schemacontext.ContextItem) float64 {
	if item.Score == nil {
		return 0
	}
	return *item.Score
}

func dropped(item schemacontext.ContextItem, reason schemacontext.DropReason, note string) schemacontext.DroppedItem {
	return schemacontext.DroppedItem{
		ID:          item.ID,
		Type:        item.Type,
		Source:      item.Source,
		Score:       copyFloat(item.Score),
		DropReason:  reason,
		ReasonNotes: []string{note},
	}
}

func copyItem(item schemacontext.ContextItem) schemacontext.ContextItem {
	out := item
	out.Score = copyFloat(item.Score)
	if item.Tokens != nil {
		tokens := *item.Tokens
		out.Tokens = &tokens
	}
	return out
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func copyAnchors(anchors []schemacontext.Anchor) []schemacontext.Anchor {
	out := make([]schemacontext.Anchor, len(anchors))
	copy(out, anchors)
	return out
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return coreerrors.InvalidInput(fmt.Errorf("request id is required"), coreerrors.CodeInvalidCandidates)
	}
	if req.View.Policy.Context.MaxTokens < 0 {
		return coreerrors.InvalidInput(fmt.Errorf("view %q max_tokens must be >= 0", req.View.ID), coreerrors.CodeInvalidView)
	}
	weights := req.View.Policy.Context.Weights
	namedWeights := []struct {
		name  string
		value float64
	}{
		{schemacontext.SectionAnchors, weights.Anchors},
		{schemacontext.SectionStream, weights.Stream},
		{schemacontext.SectionIslands, weights.Islands},
		{schemacontext.SectionMemory, weights.Memory},
		{schemacontext.SectionRag, weights.Rag},
	}
	for _, weight := range namedWeights {
		if math.IsNaN(weight.value) || math.IsInf(weight.value, 0) || weight.value < 0 {
			return coreerrors.InvalidInput(fmt.Errorf("view %q weight %s must be a finite non-negative number", req.View.ID, weight.name), coreerrors.CodeInvalidView)
		}
	}
	pools := []struct {
		name  string
		items []schemacontext.ContextItem
	}{
		{schemacontext.SectionAnchors, req.Candidates.Anchors},
		{schemacontext.SectionStream, req.Candidates.Stream},
		{schemacontext.SectionIslands, req.Candidates.Islands},
		{schemacontext.SectionMemory, req.Candidates.Memory},
		{schemacontext.SectionRag, req.Candidates.Rag},
	}
	for _, pool := range pools {
		for index, item := range pool.items {
			if strings.TrimSpace(item.ID) == "" {
				return coreerrors.InvalidInput(fmt.Errorf("candidate %d in %s pool has no id", index, pool.name), coreerrors.CodeInvalidCandidates)
			}
			if item.Tokens != nil && *item.Tokens < 0 {
				return coreerrors.InvalidInput(fmt.Errorf("candidate %s in %s pool has negative tokens %d", item.ID, pool.name, *item.Tokens), coreerrors.CodeInvalidCandidates)
			}
		}
	}
	return nil
}
