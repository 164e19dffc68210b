package diff

import (
	"reflect"
	"testing"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	"github.com/davidahmann/contextos/internal/testutil"
)

func TestRecipesIdempotent(t *testing.T) {
	recipe, plan := testutil.Turn(t, "r1", testutil.View("plan"), testutil.Candidates())
	diff, err := Recipes(recipe, recipe, plan, plan)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !IsEmpty(diff) {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
	selection := diff.ContextSelection
	for name, ids := range map[string][]string{
		"added islands":   selection.AddedIslands,
		"removed islands": selection.RemovedIslands,
		"added anchors":   selection.AddedAnchors,
		"removed anchors": selection.RemovedAnchors,
	} {
		if ids == nil || len(ids) != 0 {
			t.Fatalf("%s: expected empty non-nil slice, got %#v", name, ids)
		}
	}
	if !reflect.DeepEqual(diff.TokenReportChange.Previous, diff.TokenReportChange.Next) {
		t.Fatalf("expected identical token reports")
	}
	if diff.PreviousRecipeID != "r1" || diff.NextRecipeID != "r1" {
		t.Fatalf("unexpected recipe ids: %s %s", diff.PreviousRecipeID, diff.NextRecipeID)
	}
}

func TestRecipesReportsChanges(t *testing.T) {
	prev, prevPlan := testutil.Turn(t, "r1", testutil.View("plan"), testutil.Candidates())

	candidates := testutil.Candidates()
	candidates.Islands = candidates.Islands[2:]
	candidates.Anchors = []schemacontext.ContextItem{testutil.Item("a2", schemacontext.ItemAnchor, 1, 40)}
	candidates.Stream = candidates.Stream[:5]
	view := testutil.View("plan")
	view.Version = "2"
	view.Policy.Runtime.AllowRag = true
	next, nextPlan := testutil.Turn(t, "r2", view, candidates)

	diff, err := Recipes(prev, next, prevPlan, nextPlan)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	selection := diff.ContextSelection
	if !reflect.DeepEqual(selection.AddedIslands, []string{"i4", "i5"}) || !reflect.DeepEqual(selection.RemovedIslands, []string{"i1", "i2"}) {
		t.Fatalf("unexpected island diff: +%v -%v", selection.AddedIslands, selection.RemovedIslands)
	}
	if !reflect.DeepEqual(selection.AddedAnchors, []string{"a2"}) || !reflect.DeepEqual(selection.RemovedAnchors, []string{"a1"}) {
		t.Fatalf("unexpected anchor diff: +%v -%v", selection.AddedAnchors, selection.RemovedAnchors)
	}
	if selection.StreamWindowChange.PreviousCount != 8 || selection.StreamWindowChange.NextCount != 5 {
		t.Fatalf("unexpected stream counts: %+v", selection.StreamWindowChange)
	}
	if diff.ViewChange.Previous.Version != "1" || diff.ViewChange.Next.Version != "2" {
		t.Fatalf("unexpected view change: %+v", diff.ViewChange)
	}
	if diff.RuntimePolicyChange.Previous.AllowRag || !diff.RuntimePolicyChange.Next.AllowRag {
		t.Fatalf("unexpected runtime policy change: %+v", diff.RuntimePolicyChange)
	}
	// The smaller pool fits every budget, so nothing is dropped in next.
	if ids := droppedIDs(diff.DroppedItemsChange.Removed); !reflect.DeepEqual(ids, []string{"s9", "s10", "i4", "i5"}) {
		t.Fatalf("unexpected removed drops: %v", ids)
	}
	if len(diff.DroppedItemsChange.Added) != 0 {
		t.Fatalf("unexpected added drops: %v", droppedIDs(diff.DroppedItemsChange.Added))
	}
	if IsEmpty(diff) {
		t.Fatalf("expected non-empty diff")
	}
}

// Dropped items are compared by id only: an item dropped in both plans for
// different reasons does not show up in the diff.
func TestRecipesDroppedItemsKeyedByIDOnly(t *testing.T) {
	recipe, plan := testutil.Turn(t, "r1", testutil.View("plan"), testutil.Candidates())
	changed := plan
	changed.DroppedItems = append([]schemacontext.DroppedItem{}, plan.DroppedItems...)
	changed.DroppedItems[0].DropReason = schemacontext.DropLowScore
	changed.DroppedItems[0].ReasonNotes = []string{string(schemacontext.DropLowScore)}

	diff, err := Recipes(recipe, recipe, plan, changed)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(diff.DroppedItemsChange.Added) != 0 || len(diff.DroppedItemsChange.Removed) != 0 {
		t.Fatalf("expected reason change to be invisible, got %+v", diff.DroppedItemsChange)
	}
}

func TestRecipesRejectsMalformedInput(t *testing.T) {
	recipe, plan := testutil.Turn(t, "r1", testutil.View("plan"), testutil.Candidates())
	broken := recipe
	broken.ViewID = ""
	if _, err := Recipes(recipe, broken, plan, plan); coreerrors.CodeOf(err) != coreerrors.CodeInvalidRecipe {
		t.Fatalf("expected invalid recipe, got %v", err)
	}
	brokenPlan := plan
	brokenPlan.PlanID = ""
	if _, err := Recipes(recipe, recipe, brokenPlan, plan); coreerrors.CodeOf(err) != coreerrors.CodeInvalidPlan {
		t.Fatalf("expected invalid plan, got %v", err)
	}
}

func droppedIDs(items []schemacontext.DroppedItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
