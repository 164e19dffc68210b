package digest

import (
	"testing"
	"time"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

func TestHashTextNormalizesNewlines(t *testing.T) {
	if HashText("a\r\nb\r") != HashText("a\nb\n") {
		t.Fatalf("expected newline variants to hash identically")
	}
	if HashText("a") == HashText("b") {
		t.Fatalf("expected different text to hash differently")
	}
}

func TestHashMessagesIgnoresVolatileOrder(t *testing.T) {
	left := []schemarecipe.ModelMessage{{Role: "system", Content: "hello\r\nworld"}, {Role: "user", Content: "hi", Name: "dev"}}
	right := []schemarecipe.ModelMessage{{Role: "system", Content: "hello\nworld"}, {Role: "user", Content: "hi", Name: "dev"}}
	hl, err := HashMessages(left)
	if err != nil {
		t.Fatalf("hash left: %v", err)
	}
	hr, err := HashMessages(right)
	if err != nil {
		t.Fatalf("hash right: %v", err)
	}
	if hl != hr {
		t.Fatalf("expected identical message hashes")
	}
	swapped := []schemarecipe.ModelMessage{right[1], right[0]}
	hs, err := HashMessages(swapped)
	if err != nil {
		t.Fatalf("hash swapped: %v", err)
	}
	if hs == hr {
		t.Fatalf("expected message order to change the hash")
	}
}

func TestHashPlanExcludesIdentifiers(t *testing.T) {
	plan := samplePlan()
	other := samplePlan()
	other.PlanID = "req-2-plan"
	other.RequestID = "req-2"
	other.PlannerVersion = "v9"

	h1, err := HashPlan(plan)
	if err != nil {
		t.Fatalf("hash plan: %v", err)
	}
	h2, err := HashPlan(other)
	if err != nil {
		t.Fatalf("hash other plan: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identifiers to be excluded from the plan hash")
	}

	other.TokenReport.UsedTotal++
	h3, err := HashPlan(other)
	if err != nil {
		t.Fatalf("hash changed plan: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("expected token report change to alter the plan hash")
	}
}

func TestHashPlanNilAndEmptyEqual(t *testing.T) {
	plan := samplePlan()
	plan.DroppedItems = nil
	withEmpty := samplePlan()
	withEmpty.DroppedItems = []schemacontext.DroppedItem{}
	h1, err := HashPlan(plan)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPlan(withEmpty)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected nil and empty dropped items to hash identically")
	}
}

func TestHashCandidates(t *testing.T) {
	h1, err := HashCandidates(schemacontext.Selection{})
	if err != nil {
		t.Fatalf("hash empty: %v", err)
	}
	h2, err := HashCandidates(schemacontext.Selection{Stream: []schemacontext.ContextItem{}})
	if err != nil {
		t.Fatalf("hash empty stream: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected nil and empty pools to hash identically")
	}
	h3, err := HashCandidates(schemacontext.Selection{Stream: []schemacontext.ContextItem{{ID: "s1", Content: "x"}}})
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("expected candidate content to alter the hash")
	}
}

func TestHashValueMatchesEquivalentMaps(t *testing.T) {
	h1, err := HashValue(map[string]any{"a": 1, "b": "x\r\n"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashValue(map[string]any{"b": "x\n", "a": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected equivalent maps to hash identically")
	}
}

func samplePlan() schemacontext.ContextPlan {
	tokens := 10
	return schemacontext.ContextPlan{
		PlanID:         "req-1-plan",
		RequestID:      "req-1",
		PlannerVersion: "v1",
		SelectedSections: []schemacontext.Section{
			{ID: schemacontext.SectionAnchors, Label: "Anchors", Items: []schemacontext.ContextItem{{ID: "a1", Type: schemacontext.ItemAnchor, Content: "goal", Tokens: &tokens}}, TokenEstimate: 10, Budget: 100},
		},
		StableAnchors: []schemacontext.Anchor{{ID: "a1", Label: "Goal", Content: "goal", Scope: "project", UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}},
		TokenReport: schemacontext.TokenReport{
			BudgetTotal: 1000,
			UsedTotal:   10,
			ByBucket:    map[string]schemacontext.BucketUsage{schemacontext.SectionAnchors: {Budget: 100, Used: 10}},
		},
		DroppedItems: []schemacontext.DroppedItem{},
	}
}
