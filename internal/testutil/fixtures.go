package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/davidahmann/contextos/core/planner"
	"github.com/davidahmann/contextos/core/prompt"
	"github.com/davidahmann/contextos/core/recipe"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
)

// FixedTime is the timestamp stamped on fixture recipes.
var FixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// View returns a view with weights 0.1/0.4/0.3/0.1/0.1 over 1000 tokens and
// RAG disabled.
func View(id string) schemaview.Definition {
	return schemaview.Definition{
		ID:      id,
		Version: "1",
		Label:   id,
		Prompt:  "You are a careful assistant.",
		Policy: schemaview.Policy{
			Context: schemaview.ContextPolicy{
				MaxTokens: 1000,
				Weights:   schemacontext.Weights{Anchors: 0.1, Stream: 0.4, Islands: 0.3, Memory: 0.1, Rag: 0.1},
			},
			Runtime: schemaview.RuntimePolicy{Temperature: 0.2},
		},
	}
}

// Candidates returns one 40-token anchor, ten 50-token stream items with
// descending scores and five 100-token islands.
func Candidates() schemacontext.Selection {
	candidates := schemacontext.Selection{
		Anchors: []schemacontext.ContextItem{Item("a1", schemacontext.ItemAnchor, 1, 40)},
	}
	for i := 1; i <= 10; i++ {
		candidates.Stream = append(candidates.Stream, Item(fmt.Sprintf("s%d", i), schemacontext.ItemStream, 1-float64(i)*0.05, 50))
	}
	for i := 1; i <= 5; i++ {
		candidates.Islands = append(candidates.Islands, Item(fmt.Sprintf("i%d", i), schemacontext.ItemIsland, 1-float64(i)*0.1, 100))
	}
	return candidates
}

func Item(id string, itemType schemacontext.ItemType, score float64, tokens int) schemacontext.ContextItem {
	return schemacontext.ContextItem{
		ID:      id,
		Type:    itemType,
		Content: "content for " + id,
		Source:  string(itemType),
		Score:   &score,
		Tokens:  &tokens,
	}
}

func StableAnchors(ids ...string) []schemacontext.Anchor {
	anchors := make([]schemacontext.Anchor, 0, len(ids))
	for _, id := range ids {
		anchors = append(anchors, schemacontext.Anchor{ID: id, Label: id, Content: "content for " + id, Scope: "project", UpdatedAt: FixedTime})
	}
	return anchors
}

// Turn plans candidates under view and builds the matching recipe.
func Turn(t *testing.T, recipeID string, view schemaview.Definition, candidates schemacontext.Selection) (schemarecipe.Recipe, schemacontext.ContextPlan) {
	t.Helper()
	plan, err := planner.Plan(planner.Request{
		Message:       "what next?",
		View:          view,
		Candidates:    candidates,
		RequestID:     recipeID + "-req",
		StableAnchors: StableAnchors("a1"),
		Window:        schemacontext.Window{StreamRecent: 6, StreamMiddle: 2},
	})
	if err != nil {
		t.Fatalf("plan %s: %v", recipeID, err)
	}
	messages := prompt.Messages(view, plan, "what next?")
	built, err := recipe.Build(recipe.BuildParams{
		ID:        recipeID,
		Timestamp: FixedTime,
		View:      view,
		Plan:      plan,
		ModelPlan: prompt.ModelPlan(view, messages, prompt.ModelOptions{}),
		Notes:     []string{"fixture"},
	})
	if err != nil {
		t.Fatalf("build recipe %s: %v", recipeID, err)
	}
	return built, plan
}
