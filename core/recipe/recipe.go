package recipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidahmann/contextos/core/digest"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/prompt"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/core/schema/validate"
	"github.com/google/uuid"
)

// ModelAdapter executes a rendered model call. The core never calls it; the
// orchestrating caller does, after a plan is produced.
type ModelAdapter interface {
	Execute(ctx context.Context, plan schemarecipe.ModelCallPlan) (Completion, error)
}

type Completion struct {
	Text string `json:"text"`
}

type BuildParams struct {
	ID             string
	RequestID      string
	Revision       int
	ParentRecipeID string
	Timestamp      time.Time
	View           schemaview.Definition
	Plan           schemacontext.ContextPlan
	ModelPlan      schemarecipe.ModelCallPlan
	Notes          []string
	Diagnostics    *schemarecipe.Diagnostics
}

type ReplayResult struct {
	RecipeID           string                     `json:"recipe_id"`
	PlanID             string                     `json:"plan_id"`
	PlanHash           string                     `json:"plan_hash"`
	PromptHash         string                     `json:"prompt_hash"`
	RecordedPromptHash string                     `json:"recorded_prompt_hash"`
	PromptMatches      bool                       `json:"prompt_matches"`
	ModelPlan          schemarecipe.ModelCallPlan `json:"model_plan"`
}

// Build assembles the recipe for one turn from the effective view, its plan
// and the model call plan.
func Build(params BuildParams) (schemarecipe.Recipe, error) {
	if err := validate.Plan(params.Plan); err != nil {
		return schemarecipe.Recipe{}, err
	}
	if strings.TrimSpace(params.View.ID) == "" || strings.TrimSpace(params.View.Version) == "" {
		return schemarecipe.Recipe{}, coreerrors.InvalidInput(fmt.Errorf("view id and version are required"), coreerrors.CodeInvalidView)
	}
	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = uuid.NewString()
	}
	requestID := strings.TrimSpace(params.RequestID)
	if requestID == "" {
		requestID = params.Plan.RequestID
	}
	revision := params.Revision
	if revision <= 0 {
		revision = 1
	}
	timestamp := params.Timestamp.UTC()
	if params.Timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	notes := append([]string{}, params.Notes...)
	runtime := params.View.Policy.Runtime
	kvPolicy := params.ModelPlan.KVPolicy
	if kvPolicy == "" {
		kvPolicy = schemarecipe.KVPolicyDefault
	}

	recipe := schemarecipe.Recipe{
		ID:             id,
		RequestID:      requestID,
		Revision:       revision,
		ParentRecipeID: strings.TrimSpace(params.ParentRecipeID),
		Timestamp:      timestamp,
		ViewID:         params.View.ID,
		ViewVersion:    params.View.Version,
		ViewWeights:    params.View.Policy.Context.Weights,
		PlannerVersion: params.Plan.PlannerVersion,
		ContextPlanID:  params.Plan.PlanID,
		RuntimePolicy: schemarecipe.RuntimeSnapshot{
			Temperature:      runtime.Temperature,
			AllowTools:       runtime.AllowTools,
			AllowRag:         runtime.AllowRag,
			AllowMemoryWrite: runtime.AllowMemoryWrite,
			KVPolicy:         kvPolicy,
		},
		SelectedContext: Selection(params.Plan),
		TokenUsage: schemarecipe.TokenUsage{
			Budget: params.Plan.TokenReport.BudgetTotal,
			Used:   params.Plan.TokenReport.UsedTotal,
		},
		ModelPlan:   params.ModelPlan,
		Decisions:   schemarecipe.Decisions{Notes: notes},
		Diagnostics: params.Diagnostics,
	}
	return recipe, nil
}

// Selection copies the selected items of each plan section.
func Selection(plan schemacontext.ContextPlan) schemacontext.Selection {
	items := func(id string) []schemacontext.ContextItem {
		return append([]schemacontext.ContextItem{}, plan.SectionItems(id)...)
	}
	return schemacontext.Selection{
		Anchors: items(schemacontext.SectionAnchors),
		Stream:  items(schemacontext.SectionStream),
		Islands: items(schemacontext.SectionIslands),
		Memory:  items(schemacontext.SectionMemory),
		Rag:     items(schemacontext.SectionRag),
	}
}

// Replay re-renders the prompt for a stored recipe and plan without planning
// again. The view must be the version the recipe was produced with; the
// recipe's recorded weights replace the view's.
func Replay(stored schemarecipe.Recipe, plan schemacontext.ContextPlan, view schemaview.Definition) (ReplayResult, error) {
	if err := validate.Recipe(stored); err != nil {
		return ReplayResult{}, err
	}
	if err := validate.Plan(plan); err != nil {
		return ReplayResult{}, err
	}
	if plan.PlanID != stored.ContextPlanID {
		return ReplayResult{}, coreerrors.InvalidInput(fmt.Errorf("plan %s does not belong to recipe %s (expected %s)", plan.PlanID, stored.ID, stored.ContextPlanID), coreerrors.CodeInvalidPlan)
	}
	if view.ID != stored.ViewID || view.Version != stored.ViewVersion {
		return ReplayResult{}, coreerrors.InvalidInput(fmt.Errorf("view version mismatch for replay: %s@%s vs %s@%s", view.ID, view.Version, stored.ViewID, stored.ViewVersion), coreerrors.CodeInvalidView)
	}
	view.Policy.Context.Weights = stored.ViewWeights

	messages := prompt.Messages(view, plan, prompt.UserMessage(stored.ModelPlan.Messages))
	modelPlan := stored.ModelPlan
	modelPlan.Messages = messages

	planHash, err := digest.HashPlan(plan)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("hash plan: %w", err)
	}
	promptHash, err := digest.HashMessages(messages)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("hash prompt: %w", err)
	}
	recordedHash, err := digest.HashMessages(stored.ModelPlan.Messages)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("hash recorded prompt: %w", err)
	}
	return ReplayResult{
		RecipeID:           stored.ID,
		PlanID:             plan.PlanID,
		PlanHash:           planHash,
		PromptHash:         promptHash,
		RecordedPromptHash: recordedHash,
		PromptMatches:      promptHash == recordedHash,
		ModelPlan:          modelPlan,
	}, nil
}
