package validate

import (
	"path/filepath"
	"strings"
	"testing"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

func TestValidateSchemaFixtures(t *testing.T) {
	cases := []struct {
		name    string
		schema  string
		valid   string
		invalid string
		isJSONL bool
	}{
		{name: "view", schema: SchemaView, valid: "view_valid.json", invalid: "view_invalid.json"},
		{name: "context_plan", schema: SchemaContextPlan, valid: "context_plan_valid.json", invalid: "context_plan_invalid.json"},
		{name: "recipe", schema: SchemaRecipe, valid: "recipe_valid.json", invalid: "recipe_invalid.json"},
		{name: "regress_profile", schema: SchemaRegressProfile, valid: "regress_profile_valid.json", invalid: "regress_profile_invalid.json"},
		{name: "recipe_jsonl", schema: SchemaRecipe, valid: "recipes_valid.jsonl", invalid: "recipes_invalid.jsonl", isJSONL: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			valid := filepath.Join("testdata", tc.valid)
			invalid := filepath.Join("testdata", tc.invalid)
			if tc.isJSONL {
				if err := ValidateJSONLFile(tc.schema, valid); err != nil {
					t.Fatalf("expected valid fixture, got error: %v", err)
				}
				err := ValidateJSONLFile(tc.schema, invalid)
				if err == nil {
					t.Fatalf("expected invalid fixture to fail")
				}
				if !strings.Contains(err.Error(), "jsonl line 2") {
					t.Fatalf("expected failing line number in error, got %v", err)
				}
				return
			}
			if err := ValidateJSONFile(tc.schema, valid); err != nil {
				t.Fatalf("expected valid fixture, got error: %v", err)
			}
			if err := ValidateJSONFile(tc.schema, invalid); err == nil {
				t.Fatalf("expected invalid fixture to fail")
			}
		})
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	if err := ValidateJSON("missing", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}

func TestValidateJSONFileMissing(t *testing.T) {
	if err := ValidateJSONFile(SchemaView, filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestEmbeddedSchemasCompile(t *testing.T) {
	for _, name := range Names() {
		if _, err := loadSchema(name); err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
	}
}

func TestValidateValueRecipe(t *testing.T) {
	recipe := schemarecipe.Recipe{
		ID:             "recipe-1",
		RequestID:      "req-1",
		Revision:       1,
		ViewID:         "plan",
		ViewVersion:    "1",
		PlannerVersion: "v1",
		ContextPlanID:  "req-1-plan",
		ModelPlan:      schemarecipe.ModelCallPlan{ModelID: "mock-llm", Messages: []schemarecipe.ModelMessage{{Role: "user", Content: "hi"}}},
	}
	if err := ValidateValue(SchemaRecipe, recipe); err != nil {
		t.Fatalf("expected recipe to validate: %v", err)
	}
	recipe.Revision = 0
	if err := ValidateValue(SchemaRecipe, recipe); err == nil {
		t.Fatalf("expected revision 0 to fail")
	}
}

func TestRecipeShape(t *testing.T) {
	recipe := schemarecipe.Recipe{ID: "r1", ViewID: "plan", ViewVersion: "1", ContextPlanID: "req-1-plan"}
	if err := Recipe(recipe); err != nil {
		t.Fatalf("expected valid recipe shape: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*schemarecipe.Recipe)
	}{
		{"missing id", func(r *schemarecipe.Recipe) { r.ID = "" }},
		{"missing view id", func(r *schemarecipe.Recipe) { r.ViewID = "" }},
		{"missing view version", func(r *schemarecipe.Recipe) { r.ViewVersion = " " }},
		{"missing context plan id", func(r *schemarecipe.Recipe) { r.ContextPlanID = "" }},
		{"item without id", func(r *schemarecipe.Recipe) {
			r.SelectedContext.Islands = []schemacontext.ContextItem{{Content: "x"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := recipe
			tc.mutate(&candidate)
			err := Recipe(candidate)
			if err == nil {
				t.Fatalf("expected shape error")
			}
			if coreerrors.CodeOf(err) != coreerrors.CodeInvalidRecipe {
				t.Fatalf("unexpected code: %s", coreerrors.CodeOf(err))
			}
		})
	}
}

func TestPlanShape(t *testing.T) {
	plan := schemacontext.ContextPlan{
		PlanID: "p1",
		SelectedSections: []schemacontext.Section{
			{ID: schemacontext.SectionAnchors, Items: []schemacontext.ContextItem{{ID: "a1"}}},
		},
		DroppedItems: []schemacontext.DroppedItem{{ID: "d1"}},
	}
	if err := Plan(plan); err != nil {
		t.Fatalf("expected valid plan shape: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*schemacontext.ContextPlan)
	}{
		{"missing plan id", func(p *schemacontext.ContextPlan) { p.PlanID = "" }},
		{"section without id", func(p *schemacontext.ContextPlan) {
			p.SelectedSections = []schemacontext.Section{{}}
		}},
		{"dropped without id", func(p *schemacontext.ContextPlan) {
			p.DroppedItems = []schemacontext.DroppedItem{{}}
		}},
		{"negative totals", func(p *schemacontext.ContextPlan) { p.TokenReport.UsedTotal = -1 }},
		{"negative item tokens", func(p *schemacontext.ContextPlan) {
			negative := -500
			p.SelectedSections = []schemacontext.Section{
				{ID: schemacontext.SectionMemory, Items: []schemacontext.ContextItem{{ID: "m-neg", Tokens: &negative}}},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := plan
			tc.mutate(&candidate)
			err := Plan(candidate)
			if err == nil {
				t.Fatalf("expected shape error")
			}
			if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput || coreerrors.CodeOf(err) != coreerrors.CodeInvalidPlan {
				t.Fatalf("unexpected classification: %s %s", coreerrors.CategoryOf(err), coreerrors.CodeOf(err))
			}
		})
	}
}
