package recipe

import (
	"testing"
	"time"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/prompt"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/core/schema/validate"
)

func TestBuildFillsRecipe(t *testing.T) {
	view, plan := sampleViewAndPlan()
	messages := prompt.Messages(view, plan, "hello")
	modelPlan := prompt.ModelPlan(view, messages, prompt.ModelOptions{})
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	recipe, err := Build(BuildParams{
		ID:        "recipe-1",
		Timestamp: at,
		View:      view,
		Plan:      plan,
		ModelPlan: modelPlan,
		Notes:     []string{"estimator:plan"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if recipe.RequestID != "req-1" || recipe.Revision != 1 || recipe.ContextPlanID != "req-1-plan" || recipe.PlannerVersion != "v1" {
		t.Fatalf("unexpected identity fields: %+v", recipe)
	}
	if !recipe.Timestamp.Equal(at) || recipe.ViewID != "plan" || recipe.ViewVersion != "1" {
		t.Fatalf("unexpected view fields: %+v", recipe)
	}
	if recipe.TokenUsage.Used != 10 || recipe.TokenUsage.Budget != 100 {
		t.Fatalf("unexpected token usage: %+v", recipe.TokenUsage)
	}
	if len(recipe.SelectedContext.Anchors) != 1 || recipe.SelectedContext.Rag == nil {
		t.Fatalf("unexpected selection: %+v", recipe.SelectedContext)
	}
	if recipe.RuntimePolicy.KVPolicy != schemarecipe.KVPolicyDefault || recipe.DiagnosticMode() != schemarecipe.ModeNormal {
		t.Fatalf("unexpected runtime snapshot: %+v", recipe.RuntimePolicy)
	}
	if err := validate.ValidateValue(validate.SchemaRecipe, recipe); err != nil {
		t.Fatalf("built recipe should satisfy the recipe schema: %v", err)
	}
}

func TestBuildAssignsID(t *testing.T) {
	view, plan := sampleViewAndPlan()
	recipe, err := Build(BuildParams{View: view, Plan: plan})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(recipe.ID) != 36 || recipe.Timestamp.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %q %v", recipe.ID, recipe.Timestamp)
	}
}

func TestBuildRejectsMalformedInput(t *testing.T) {
	view, plan := sampleViewAndPlan()
	plan.PlanID = ""
	if _, err := Build(BuildParams{View: view, Plan: plan}); coreerrors.CodeOf(err) != coreerrors.CodeInvalidPlan {
		t.Fatalf("expected invalid plan, got %v", err)
	}
	view, plan = sampleViewAndPlan()
	view.Version = ""
	if _, err := Build(BuildParams{View: view, Plan: plan}); coreerrors.CodeOf(err) != coreerrors.CodeInvalidView {
		t.Fatalf("expected invalid view, got %v", err)
	}
}

func TestReplayMatchesRecordedPrompt(t *testing.T) {
	view, plan := sampleViewAndPlan()
	messages := prompt.Messages(view, plan, "hello")
	recipe, err := Build(BuildParams{ID: "recipe-1", View: view, Plan: plan, ModelPlan: prompt.ModelPlan(view, messages, prompt.ModelOptions{})})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := Replay(recipe, plan, view)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !result.PromptMatches || result.PlanHash == "" || result.PromptHash != result.RecordedPromptHash {
		t.Fatalf("expected matching replay, got %+v", result)
	}

	changed := view
	changed.Prompt = "Different instructions."
	result, err = Replay(recipe, plan, changed)
	if err != nil {
		t.Fatalf("replay changed prompt: %v", err)
	}
	if result.PromptMatches {
		t.Fatalf("expected prompt mismatch after view prompt change")
	}

	stale := view
	stale.Version = "2"
	if _, err := Replay(recipe, plan, stale); coreerrors.CodeOf(err) != coreerrors.CodeInvalidView {
		t.Fatalf("expected version mismatch error, got %v", err)
	}
}

func sampleViewAndPlan() (schemaview.Definition, schemacontext.ContextPlan) {
	tokens := 10
	view := schemaview.Definition{
		ID:      "plan",
		Version: "1",
		Label:   "Plan",
		Prompt:  "Plan the work.",
		Policy: schemaview.Policy{
			Context: schemaview.ContextPolicy{MaxTokens: 100, Weights: schemacontext.Weights{Anchors: 0.5, Stream: 0.5}},
			Runtime: schemaview.RuntimePolicy{Temperature: 0.2},
		},
	}
	plan := schemacontext.ContextPlan{
		PlanID:         "req-1-plan",
		RequestID:      "req-1",
		PlannerVersion: "v1",
		SelectedSections: []schemacontext.Section{
			{ID: schemacontext.SectionAnchors, Label: "Anchors", Items: []schemacontext.ContextItem{{ID: "a1", Type: schemacontext.ItemAnchor, Content: "goal", Tokens: &tokens}}, TokenEstimate: 10, Budget: 50},
			{ID: schemacontext.SectionStream, Label: "Stream", Items: []schemacontext.ContextItem{}, Budget: 50},
		},
		TokenReport:  schemacontext.TokenReport{BudgetTotal: 100, UsedTotal: 10},
		DroppedItems: []schemacontext.DroppedItem{},
	}
	return view, plan
}
