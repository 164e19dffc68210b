package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/contextos/core/contextproof"
	"github.com/davidahmann/contextos/core/digest"
	"github.com/davidahmann/contextos/core/planner"
	"github.com/davidahmann/contextos/core/prompt"
	"github.com/davidahmann/contextos/core/recipe"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemarecipe "github.com/davidahmann/contextos/core/schema/v1/recipe"
	"github.com/davidahmann/contextos/core/schema/validate"
	"github.com/davidahmann/contextos/core/sign"
	"github.com/davidahmann/contextos/core/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type planFlags struct {
	viewID         string
	message        string
	candidatesPath string
	anchorsPath    string
	requestID      string
	recipeID       string
	parentRecipeID string
	modelID        string
	tools          []string
	kvPolicy       string
	safety         string
	excludeIslands []string
	streamRecent   int
	streamMiddle   int
	signRecipe     bool
	notes          []string
}

type planOutput struct {
	OK            bool                       `json:"ok"`
	RecipeID      string                     `json:"recipe_id"`
	PlanID        string                     `json:"plan_id"`
	PlanHash      string                     `json:"plan_hash"`
	CandidateHash string                     `json:"candidate_hash"`
	ViewID        string                     `json:"view_id"`
	TokenReport   schemacontext.TokenReport  `json:"token_report"`
	DroppedItems  int                        `json:"dropped_items"`
	Persisted     bool                       `json:"persisted"`
	Signed        bool                       `json:"signed"`
	Warnings      []string                   `json:"warnings,omitempty"`
	ModelPlan     schemarecipe.ModelCallPlan `json:"model_plan"`
}

func (o planOutput) lines() []string {
	text := []string{
		fmt.Sprintf("plan %s for recipe %s (view %s)", o.PlanID, o.RecipeID, o.ViewID),
		fmt.Sprintf("tokens: %d of %d used, %d items dropped", o.TokenReport.UsedTotal, o.TokenReport.BudgetTotal, o.DroppedItems),
		"plan hash: " + o.PlanHash,
	}
	if !o.Persisted {
		text = append(text, "not persisted")
	}
	for _, warning := range o.Warnings {
		text = append(text, "warning: "+warning)
	}
	return text
}

func newPlanCommand(invocation *cli) *cobra.Command {
	flags := &planFlags{}
	command := &cobra.Command{
		Use:   "plan",
		Short: "Plan context for one turn and record the recipe",
		Long: `Select context from a candidate pool under a view's token budget, render
the prompt, and persist the plan, recipe and candidate snapshot.

Examples:
  contextos plan --view chat --candidates pool.json --message "what changed?"
  contextos plan --view debug --candidates pool.json --exclude-island i3 --sign --json`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("plan", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			return invocation.runPlan(cmd, flags)
		}),
	}
	command.Flags().StringVar(&flags.viewID, "view", "", "view id")
	command.Flags().StringVar(&flags.message, "message", "", "user message for the turn")
	command.Flags().StringVar(&flags.candidatesPath, "candidates", "", "candidate pool JSON path")
	command.Flags().StringVar(&flags.anchorsPath, "anchors", "", "stable anchors JSON path")
	command.Flags().StringVar(&flags.requestID, "request-id", "", "request id (default: generated)")
	command.Flags().StringVar(&flags.recipeID, "recipe-id", "", "recipe id (default: generated)")
	command.Flags().StringVar(&flags.parentRecipeID, "parent", "", "parent recipe id")
	command.Flags().StringVar(&flags.modelID, "model", "", "model id")
	command.Flags().StringSliceVar(&flags.tools, "tool", nil, "tool offered to the model when the view allows tools")
	command.Flags().StringVar(&flags.kvPolicy, "kv-policy", schemarecipe.KVPolicyDefault, "kv cache policy: default, cache or no_cache")
	command.Flags().StringVar(&flags.safety, "safety", schemarecipe.SafetyStandard, "safety level: standard or strict")
	command.Flags().StringSliceVar(&flags.excludeIslands, "exclude-island", nil, "island id to exclude")
	command.Flags().IntVar(&flags.streamRecent, "stream-recent", -1, "recent stream window (default: planner.stream_recent)")
	command.Flags().IntVar(&flags.streamMiddle, "stream-middle", -1, "middle stream window (default: planner.stream_middle)")
	command.Flags().BoolVar(&flags.signRecipe, "sign", false, "sign the recipe with the configured key")
	command.Flags().StringSliceVar(&flags.notes, "note", nil, "decision note recorded on the recipe")
	return command
}

func (c *cli) runPlan(cmd *cobra.Command, flags *planFlags) (reporter, int, error) {
	if strings.TrimSpace(flags.viewID) == "" || strings.TrimSpace(flags.candidatesPath) == "" {
		return nil, exitInvalidInput, usageError(fmt.Errorf("plan requires --view and --candidates"))
	}
	env, err := c.environment()
	if err != nil {
		return nil, exitInternalFailure, err
	}
	view, err := env.lookupView(flags.viewID)
	if err != nil {
		return nil, exitMissingDependency, err
	}
	candidates, err := contextproof.LoadCandidates(flags.candidatesPath)
	if err != nil {
		return nil, exitInvalidInput, err
	}
	anchors, err := loadStableAnchors(flags.anchorsPath)
	if err != nil {
		return nil, exitInvalidInput, err
	}
	window := schemacontext.Window{StreamRecent: env.config.Planner.StreamRecent, StreamMiddle: env.config.Planner.StreamMiddle}
	if flags.streamRecent >= 0 {
		window.StreamRecent = flags.streamRecent
	}
	if flags.streamMiddle >= 0 {
		window.StreamMiddle = flags.streamMiddle
	}
	requestID := strings.TrimSpace(flags.requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	var exclusions *planner.Exclusions
	if len(flags.excludeIslands) > 0 {
		exclusions = &planner.Exclusions{Islands: flags.excludeIslands}
	}

	plan, err := planner.Plan(planner.Request{
		Message:       flags.message,
		View:          view,
		Candidates:    candidates,
		RequestID:     requestID,
		StableAnchors: anchors,
		Window:        window,
		Exclusions:    exclusions,
	})
	if err != nil {
		return nil, exitInvalidInput, err
	}
	env.metrics.ObservePlan(view.ID, plan)

	messages := prompt.Messages(view, plan, flags.message)
	modelPlan := prompt.ModelPlan(view, messages, prompt.ModelOptions{
		ModelID:  flags.modelID,
		Tools:    flags.tools,
		KVPolicy: flags.kvPolicy,
		Safety:   flags.safety,
	})
	built, err := recipe.Build(recipe.BuildParams{
		ID:             flags.recipeID,
		RequestID:      requestID,
		ParentRecipeID: flags.parentRecipeID,
		View:           view,
		Plan:           plan,
		ModelPlan:      modelPlan,
		Notes:          flags.notes,
		Diagnostics: &schemarecipe.Diagnostics{
			Mode:                  schemarecipe.ModeNormal,
			CandidateSnapshotHash: plan.InputsSnapshot.CandidateHash,
		},
	})
	if err != nil {
		return nil, exitInvalidInput, err
	}

	var warnings []string
	signed := false
	if flags.signRecipe {
		keyPair, keyWarnings, err := sign.LoadSigningKey(env.signingKeys())
		if err != nil {
			return nil, exitMissingDependency, err
		}
		warnings = append(warnings, keyWarnings...)
		built, err = sign.SignRecipe(keyPair.Private, built)
		if err != nil {
			return nil, exitInternalFailure, err
		}
		signed = true
	}

	planHash, err := digest.HashPlan(plan)
	if err != nil {
		return nil, exitInternalFailure, err
	}
	persisted, err := c.persistTurn(cmd, env, built, plan, candidates)
	if err != nil {
		return nil, exitInternalFailure, err
	}
	if !persisted {
		warnings = append(warnings, "plan or recipe failed the shape check; nothing was persisted")
	}
	return planOutput{
		OK:            true,
		RecipeID:      built.ID,
		PlanID:        plan.PlanID,
		PlanHash:      planHash,
		CandidateHash: plan.InputsSnapshot.CandidateHash,
		ViewID:        view.ID,
		TokenReport:   plan.TokenReport,
		DroppedItems:  len(plan.DroppedItems),
		Persisted:     persisted,
		Signed:        signed,
		Warnings:      warnings,
		ModelPlan:     built.ModelPlan,
	}, exitOK, nil
}

// persistTurn stores the plan, recipe and candidate snapshot. A plan or recipe
// that fails its shape check is logged and skipped rather than failing the
// turn.
func (c *cli) persistTurn(cmd *cobra.Command, env *environment, built schemarecipe.Recipe, plan schemacontext.ContextPlan, candidates schemacontext.Selection) (bool, error) {
	if err := validate.Plan(plan); err != nil {
		env.logger.Warn("plan failed shape check, skipping persistence", "plan_id", plan.PlanID, "error", err)
		return false, nil
	}
	if err := validate.Recipe(built); err != nil {
		env.logger.Warn("recipe failed shape check, skipping persistence", "recipe_id", built.ID, "error", err)
		return false, nil
	}
	snapshot, err := contextproof.Snapshot(plan.PlanID, candidates)
	if err != nil {
		return false, err
	}
	ctx := cmd.Context()
	if err := store.SavePlan(ctx, env.store, plan); err != nil {
		return false, err
	}
	if err := store.SaveRecipe(ctx, env.store, built); err != nil {
		return false, err
	}
	if err := store.SaveCandidateSnapshot(ctx, env.store, snapshot); err != nil {
		return false, err
	}
	env.logger.Info("turn recorded", "recipe_id", built.ID, "plan_id", plan.PlanID, "used_tokens", plan.TokenReport.UsedTotal)
	return true, nil
}

func loadStableAnchors(path string) ([]schemacontext.Anchor, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	// #nosec G304 -- path is explicit local user input.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, invalidInput(fmt.Errorf("read stable anchors: %w", err), "invalid_anchors")
	}
	var anchors []schemacontext.Anchor
	if err := json.Unmarshal(content, &anchors); err != nil {
		return nil, invalidInput(fmt.Errorf("parse stable anchors: %w", err), "invalid_anchors")
	}
	return anchors, nil
}
