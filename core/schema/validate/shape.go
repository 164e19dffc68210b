package validate

import (
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
)

// Recipe reports the first structural field a recipe is missing.
func Recipe(recipe schemarecipe.Recipe) error {
	switch {
	case strings.TrimSpace(recipe.ID) == "":
		return recipeError("id is required")
	case strings.TrimSpace(recipe.ViewID) == "":
		return recipeError(fmt.Sprintf("recipe %s: view_id is required", recipe.ID))
	case strings.TrimSpace(recipe.ViewVersion) == "":
		return recipeError(fmt.Sprintf("recipe %s: view_version is required", recipe.ID))
	case strings.TrimSpace(recipe.ContextPlanID) == "":
		return recipeError(fmt.Sprintf("recipe %s: context_plan_id is required", recipe.ID))
	}
	pools := []struct {
		name  string
		items []schemacontext.ContextItem
	}{
		{schemacontext.SectionAnchors, recipe.SelectedContext.Anchors},
		{schemacontext.SectionStream, recipe.SelectedContext.Stream},
		{schemacontext.SectionIslands, recipe.SelectedContext.Islands},
		{schemacontext.SectionMemory, recipe.SelectedContext.Memory},
		{schemacontext.SectionRag, recipe.SelectedContext.Rag},
	}
	for _, pool := range pools {
		for index, item := range pool.items {
			if strings.TrimSpace(item.ID) == "" {
				return recipeError(fmt.Sprintf("recipe %s: selected_context.%s[%d] has no id", recipe.ID, pool.name, index))
			}
		}
	}
	return nil
}

// Plan reports the first structural field a plan is missing.
func Plan(plan schemacontext.ContextPlan) error {
	if strings.TrimSpace(plan.PlanID) == "" {
		return planError("plan_id is required")
	}
	for _, section := range plan.SelectedSections {
		if strings.TrimSpace(section.ID) == "" {
			return planError(fmt.Sprintf("plan %s: section without id", plan.PlanID))
		}
		for index, item := range section.Items {
			if strings.TrimSpace(item.ID) == "" {
				return planError(fmt.Sprintf("plan %s: section %s item %d has no id", plan.PlanID, section.ID, index))
			}
			if item.Tokens != nil && *item.Tokens < 0 {
				return planError(fmt.Sprintf("plan %s: section %s item %s has negative tokens", plan.PlanID, section.ID, item.ID))
			}
		}
	}
	for index, item := range plan.DroppedItems {
		if strings.TrimSpace(item.ID) == "" {
			return planError(fmt.Sprintf("plan %s: dropped item %d has no id", plan.PlanID, index))
		}
	}
	if plan.TokenReport.UsedTotal < 0 || plan.TokenReport.BudgetTotal < 0 {
		return planError(fmt.Sprintf("plan %s: token report totals must be >= 0", plan.PlanID))
	}
	return nil
}

func recipeError(message string) error {
	return coreerrors.InvalidInput(fmt.Errorf("invalid recipe: %s", message), coreerrors.CodeInvalidRecipe)
}

func planError(message string) error {
	return coreerrors.InvalidInput(fmt.Errorf("invalid plan: %s", message), coreerrors.CodeInvalidPlan)
}
