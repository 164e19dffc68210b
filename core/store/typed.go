package store

import (
	"context"
	"encoding/json"
	"fmt"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	"github.com/davidahmann/contextos/core/schema/validate"
)

// CandidateSnapshot is a candidate pool persisted alongside the plan it fed.
type CandidateSnapshot struct {
	ID         string                  `json:"id"`
	PlanID     string                  `json:"plan_id"`
	Hash       string                  `json:"hash"`
	Candidates schemacontext.Selection `json:"candidates"`
}

func LoadRecipe(ctx context.Context, s Store, id string) (schemarecipe.Recipe, error) {
	var recipe schemarecipe.Recipe
	if err := load(ctx, s, Recipes, id, &recipe, coreerrors.CodeInvalidRecipe); err != nil {
		return schemarecipe.Recipe{}, err
	}
	if err := validate.Recipe(recipe); err != nil {
		return schemarecipe.Recipe{}, err
	}
	return recipe, nil
}

func LoadPlan(ctx context.Context, s Store, id string) (schemacontext.ContextPlan, error) {
	var plan schemacontext.ContextPlan
	if err := load(ctx, s, ContextPlans, id, &plan, coreerrors.CodeInvalidPlan); err != nil {
		return schemacontext.ContextPlan{}, err
	}
	if err := validate.Plan(plan); err != nil {
		return schemacontext.ContextPlan{}, err
	}
	return plan, nil
}

// LoadRecipeWithPlan loads a recipe and the plan it references.
func LoadRecipeWithPlan(ctx context.Context, s Store, recipeID string) (schemarecipe.Recipe, schemacontext.ContextPlan, error) {
	recipe, err := LoadRecipe(ctx, s, recipeID)
	if err != nil {
		return schemarecipe.Recipe{}, schemacontext.ContextPlan{}, err
	}
	plan, err := LoadPlan(ctx, s, recipe.ContextPlanID)
	if err != nil {
		return schemarecipe.Recipe{}, schemacontext.ContextPlan{}, err
	}
	return recipe, plan, nil
}

func LoadCandidateSnapshot(ctx context.Context, s Store, planID string) (CandidateSnapshot, error) {
	var snapshot CandidateSnapshot
	if err := load(ctx, s, CandidatePoolSnapshots, planID, &snapshot, coreerrors.CodeInvalidCandidates); err != nil {
		return CandidateSnapshot{}, err
	}
	return snapshot, nil
}

func SaveRecipe(ctx context.Context, s Store, recipe schemarecipe.Recipe) error {
	if err := validate.Recipe(recipe); err != nil {
		return err
	}
	_, err := s.Append(ctx, Recipes, recipe)
	return err
}

func SavePlan(ctx context.Context, s Store, plan schemacontext.ContextPlan) error {
	if err := validate.Plan(plan); err != nil {
		return err
	}
	_, err := s.Append(ctx, ContextPlans, plan)
	return err
}

func SaveCandidateSnapshot(ctx context.Context, s Store, snapshot CandidateSnapshot) error {
	_, err := s.Append(ctx, CandidatePoolSnapshots, snapshot)
	return err
}

// SaveReport appends an analysis report and returns the id it was stored
// under.
func SaveReport(ctx context.Context, s Store, collection Collection, report any) (string, error) {
	stored, err := s.Append(ctx, collection, report)
	if err != nil {
		return "", err
	}
	keys, err := readKeys(stored)
	if err != nil {
		return "", corrupt(collection, err)
	}
	return keys.ID, nil
}

func load(ctx context.Context, s Store, collection Collection, id string, target any, code string) error {
	raw, err := s.FindByID(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return coreerrors.InvalidInput(fmt.Errorf("%s %s: decode: %w", collection, id, err), code)
	}
	return nil
}
