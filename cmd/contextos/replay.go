package main

import (
	"fmt"
	"strings"

	"github.com/davidahmann/contextos/core/contextproof"
	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/recipe"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	"github.com/davidahmann/contextos/core/store"
	"github.com/spf13/cobra"
)

const snapshotMissing = "missing"

type replayOutput struct {
	OK             bool                     `json:"ok"`
	Replay         recipe.ReplayResult      `json:"replay"`
	SnapshotStatus string                   `json:"snapshot_status"`
	Candidates     *schemacontext.Selection `json:"candidates,omitempty"`
}

func (o replayOutput) lines() []string {
	prompt := "matches"
	if !o.Replay.PromptMatches {
		prompt = "differs from recording"
	}
	return []string{
		fmt.Sprintf("replay of %s (plan %s)", o.Replay.RecipeID, o.Replay.PlanID),
		"prompt: " + prompt,
		"candidate snapshot: " + o.SnapshotStatus,
	}
}

func newReplayCommand(invocation *cli) *cobra.Command {
	var recipeID string
	var privacy string
	var showCandidates bool
	command := &cobra.Command{
		Use:   "replay",
		Short: "Re-render a recorded recipe's prompt and verify its candidate snapshot",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("replay", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(recipeID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("replay requires --recipe"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			ctx := cmd.Context()
			stored, plan, err := store.LoadRecipeWithPlan(ctx, env.store, recipeID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			view, err := env.lookupView(stored.ViewID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			result, err := recipe.Replay(stored, plan, view)
			if err != nil {
				return nil, exitInvalidInput, err
			}

			output := replayOutput{OK: true, Replay: result, SnapshotStatus: snapshotMissing}
			snapshot, err := store.LoadCandidateSnapshot(ctx, env.store, plan.PlanID)
			switch {
			case err == nil:
				status, verifyErr := contextproof.VerifySnapshot(snapshot, plan)
				if verifyErr != nil {
					return nil, exitInternalFailure, verifyErr
				}
				output.SnapshotStatus = status
				if showCandidates {
					redacted, redactErr := contextproof.RedactCandidates(snapshot.Candidates, privacy)
					if redactErr != nil {
						return nil, exitInvalidInput, redactErr
					}
					output.Candidates = &redacted
				}
			case coreerrors.CategoryOf(err) != coreerrors.CategoryDependencyMissing:
				return nil, exitInternalFailure, err
			}

			exitCode := exitOK
			if !result.PromptMatches || (output.SnapshotStatus != contextproof.SnapshotVerified && output.SnapshotStatus != snapshotMissing) {
				exitCode = exitVerifyFailed
			}
			env.logger.Debug("replay finished", "recipe_id", stored.ID, "prompt_matches", result.PromptMatches, "snapshot_status", output.SnapshotStatus)
			return output, exitCode, nil
		}),
	}
	command.Flags().StringVar(&recipeID, "recipe", "", "recipe id")
	command.Flags().BoolVar(&showCandidates, "show-candidates", false, "include the recorded candidate pool")
	command.Flags().StringVar(&privacy, "privacy", contextproof.PrivacyModeMetadata, "candidate content in output: metadata, hashes or raw")
	return command
}
