package diff

import (
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemadiff "github.com/davidahmann/contextos/core/schema/v1/diff"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	"github.com/davidahmann/contextos/core/schema/validate"
)

// Recipes reports what changed between two turns. Added ids appear in next
// only, removed ids in prev only, both in first-seen order.
func Recipes(prev, next schemarecipe.Recipe, prevPlan, nextPlan schemacontext.ContextPlan) (schemadiff.RecipeDiff, error) {
	for _, recipe := range []schemarecipe.Recipe{prev, next} {
		if err := validate.Recipe(recipe); err != nil {
			return schemadiff.RecipeDiff{}, err
		}
	}
	for _, plan := range []schemacontext.ContextPlan{prevPlan, nextPlan} {
		if err := validate.Plan(plan); err != nil {
			return schemadiff.RecipeDiff{}, err
		}
	}

	addedIslands, removedIslands := diffIDs(prev.SelectedContext.Islands, next.SelectedContext.Islands)
	addedAnchors, removedAnchors := diffIDs(prev.SelectedContext.Anchors, next.SelectedContext.Anchors)
	addedDropped, removedDropped := diffDropped(prevPlan.DroppedItems, nextPlan.DroppedItems)

	return schemadiff.RecipeDiff{
		PreviousRecipeID: prev.ID,
		NextRecipeID:     next.ID,
		ViewChange: schemadiff.ViewChange{
			Previous: schemadiff.ViewRef{ID: prev.ViewID, Version: prev.ViewVersion, Weights: prev.ViewWeights},
			Next:     schemadiff.ViewRef{ID: next.ViewID, Version: next.ViewVersion, Weights: next.ViewWeights},
		},
		ContextSelection: schemadiff.ContextSelectionChange{
			AddedIslands:   addedIslands,
			RemovedIslands: removedIslands,
			AddedAnchors:   addedAnchors,
			RemovedAnchors: removedAnchors,
			StreamWindowChange: schemadiff.StreamWindowChange{
				PreviousCount: len(prev.SelectedContext.Stream),
				NextCount:     len(next.SelectedContext.Stream),
			},
		},
		TokenReportChange: schemadiff.TokenReportChange{
			Previous: copyTokenReport(prevPlan.TokenReport),
			Next:     copyTokenReport(nextPlan.TokenReport),
		},
		DroppedItemsChange: schemadiff.DroppedItemsChange{
			Added:   addedDropped,
			Removed: removedDropped,
		},
		RuntimePolicyChange: schemadiff.RuntimePolicyChange{
			Previous: prev.RuntimePolicy,
			Next:     next.RuntimePolicy,
		},
	}, nil
}

// IsEmpty reports whether a diff has no added or removed entries and
// identical before/after stream counts.
func IsEmpty(diff schemadiff.RecipeDiff) bool {
	selection := diff.ContextSelection
	return len(selection.AddedIslands) == 0 &&
		len(selection.RemovedIslands) == 0 &&
		len(selection.AddedAnchors) == 0 &&
		len(selection.RemovedAnchors) == 0 &&
		selection.StreamWindowChange.PreviousCount == selection.StreamWindowChange.NextCount &&
		len(diff.DroppedItemsChange.Added) == 0 &&
		len(diff.DroppedItemsChange.Removed) == 0 &&
		diff.ViewChange.Previous == diff.ViewChange.Next &&
		diff.RuntimePolicyChange.Previous == diff.RuntimePolicyChange.Next
}

func diffIDs(prev, next []schemacontext.ContextItem) ([]string, []string) {
	prevIDs := uniqueIDs(prev)
	nextIDs := uniqueIDs(next)
	return missingFrom(nextIDs, prevIDs), missingFrom(prevIDs, nextIDs)
}

func uniqueIDs(items []schemacontext.ContextItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		ids = append(ids, item.ID)
	}
	return ids
}

// missingFrom returns the ids in source that are absent from other.
func missingFrom(source, other []string) []string {
	present := make(map[string]struct{}, len(other))
	for _, id := range other {
		present[id] = struct{}{}
	}
	out := []string{}
	for _, id := range source {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// diffDropped compares dropped items by id only. An item dropped in both
// plans for different reasons is not reported.
func diffDropped(prev, next []schemacontext.DroppedItem) ([]schemacontext.DroppedItem, []schemacontext.DroppedItem) {
	prevIDs := make(map[string]struct{}, len(prev))
	for _, item := range prev {
		prevIDs[item.ID] = struct{}{}
	}
	nextIDs := make(map[string]struct{}, len(next))
	for _, item := range next {
		nextIDs[item.ID] = struct{}{}
	}
	added := []schemacontext.DroppedItem{}
	for _, item := range next {
		if _, ok := prevIDs[item.ID]; !ok {
			added = append(added, item)
		}
	}
	removed := []schemacontext.DroppedItem{}
	for _, item := range prev {
		if _, ok := nextIDs[item.ID]; !ok {
			removed = append(removed, item)
		}
	}
	return added, removed
}

func copyTokenReport(report schemacontext.TokenReport) schemacontext.TokenReport {
	out := report
	if report.ByBucket != nil {
		out.ByBucket = make(map[string]schemacontext.BucketUsage, len(report.ByBucket))
		for key, value := range report.ByBucket {
			out.ByBucket[key] = value
		}
	}
	return out
}
