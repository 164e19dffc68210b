package main

import (
	"fmt"
	"strings"

	"github.com/davidahmann/contextos/core/contextproof"
	"github.com/davidahmann/contextos/core/diff"
	"github.com/davidahmann/contextos/core/digest"
	"github.com/davidahmann/contextos/core/drift"
	"github.com/davidahmann/contextos/core/invariants"
	schemadiff "github.com/davidahmann/contextos/core/schema/v1/diff"
	schemadrift "github.com/davidahmann/contextos/core/schema/v1/drift"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	"github.com/davidahmann/contextos/core/store"
	"github.com/spf13/cobra"
)

type diffOutput struct {
	OK             bool                  `json:"ok"`
	DiffID         string                `json:"diff_id"`
	Empty          bool                  `json:"empty"`
	CandidateDrift string                `json:"candidate_drift,omitempty"`
	ReportID       string                `json:"report_id,omitempty"`
	Diff           schemadiff.RecipeDiff `json:"diff"`
}

func (o diffOutput) lines() []string {
	if o.Empty {
		return []string{fmt.Sprintf("%s -> %s: no changes", o.Diff.PreviousRecipeID, o.Diff.NextRecipeID)}
	}
	selection := o.Diff.ContextSelection
	text := []string{
		fmt.Sprintf("%s -> %s (diff %s)", o.Diff.PreviousRecipeID, o.Diff.NextRecipeID, o.DiffID),
		fmt.Sprintf("view: %s@%s -> %s@%s", o.Diff.ViewChange.Previous.ID, o.Diff.ViewChange.Previous.Version, o.Diff.ViewChange.Next.ID, o.Diff.ViewChange.Next.Version),
		"islands added: " + joinOrNone(selection.AddedIslands),
		"islands removed: " + joinOrNone(selection.RemovedIslands),
		"anchors removed: " + joinOrNone(selection.RemovedAnchors),
		fmt.Sprintf("tokens used: %d -> %d", o.Diff.TokenReportChange.Previous.UsedTotal, o.Diff.TokenReportChange.Next.UsedTotal),
	}
	if o.CandidateDrift != "" {
		text = append(text, "candidate drift: "+o.CandidateDrift)
	}
	return text
}

type driftOutput struct {
	OK       bool               `json:"ok"`
	ReportID string             `json:"report_id,omitempty"`
	Report   schemadrift.Report `json:"report"`
}

func (o driftOutput) lines() []string {
	text := []string{fmt.Sprintf("%s -> %s confidence %.3f", o.Report.ReferenceRecipeID, o.Report.CurrentRecipeID, o.Report.Confidence)}
	for _, signal := range o.Report.DriftSignals {
		text = append(text, fmt.Sprintf("  %s %.3f %s", signal.Type, signal.Magnitude, signal.Description))
	}
	return text
}

type checkOutput struct {
	OK       bool                   `json:"ok"`
	ReportID string                 `json:"report_id,omitempty"`
	Report   schemainvariant.Report `json:"report"`
}

func (o checkOutput) lines() []string {
	status := "pass"
	if !o.Report.Pass {
		status = "fail"
	}
	text := []string{fmt.Sprintf("invariants for %s: %s", o.Report.RecipeID, status)}
	for _, violation := range o.Report.Violations {
		text = append(text, fmt.Sprintf("  [%s] %s: %s", violation.Severity, violation.InvariantID, violation.Message))
	}
	return text
}

func newDiffCommand(invocation *cli) *cobra.Command {
	var fromID, toID string
	var save bool
	command := &cobra.Command{
		Use:   "diff",
		Short: "Structural diff between two recorded recipes",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("diff", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(fromID) == "" || strings.TrimSpace(toID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("diff requires --from and --to"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			ctx := cmd.Context()
			previous, previousPlan, err := store.LoadRecipeWithPlan(ctx, env.store, fromID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			next, nextPlan, err := store.LoadRecipeWithPlan(ctx, env.store, toID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			recipeDiff, err := diff.Recipes(previous, next, previousPlan, nextPlan)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			diffID, err := digest.HashValue(recipeDiff)
			if err != nil {
				return nil, exitInternalFailure, err
			}
			output := diffOutput{OK: true, DiffID: diffID, Empty: diff.IsEmpty(recipeDiff), Diff: recipeDiff}

			previousSnapshot, previousErr := store.LoadCandidateSnapshot(ctx, env.store, previousPlan.PlanID)
			nextSnapshot, nextErr := store.LoadCandidateSnapshot(ctx, env.store, nextPlan.PlanID)
			if previousErr == nil && nextErr == nil {
				output.CandidateDrift, err = contextproof.ClassifyCandidateDrift(previousSnapshot.Candidates, nextSnapshot.Candidates)
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			if save {
				output.ReportID, err = store.SaveReport(ctx, env.store, store.RecipeDiffs, map[string]any{"id": diffID, "diff": recipeDiff})
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&fromID, "from", "", "previous recipe id")
	command.Flags().StringVar(&toID, "to", "", "next recipe id")
	command.Flags().BoolVar(&save, "save", false, "append the diff to the record store")
	return command
}

func newDriftCommand(invocation *cli) *cobra.Command {
	var referenceID, currentID string
	var save bool
	command := &cobra.Command{
		Use:   "drift",
		Short: "Drift signals between a reference and a current recipe",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("drift", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(referenceID) == "" || strings.TrimSpace(currentID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("drift requires --reference and --current"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			ctx := cmd.Context()
			reference, referencePlan, err := store.LoadRecipeWithPlan(ctx, env.store, referenceID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			current, currentPlan, err := store.LoadRecipeWithPlan(ctx, env.store, currentID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			report, err := drift.Detect(reference, current, referencePlan, currentPlan)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			output := driftOutput{OK: true, Report: report}
			if save {
				output.ReportID, err = store.SaveReport(ctx, env.store, store.DriftReports, report)
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&referenceID, "reference", "", "reference recipe id")
	command.Flags().StringVar(&currentID, "current", "", "current recipe id")
	command.Flags().BoolVar(&save, "save", false, "append the report to the record store")
	return command
}

func newCheckCommand(invocation *cli) *cobra.Command {
	var recipeID, catalogPath string
	var save bool
	command := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the invariant catalog against a recorded recipe",
		Long: `Evaluate the invariant catalog against a recorded recipe and its plan.
Exits 2 when any fatal invariant is violated.`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("check", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(recipeID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("check requires --recipe"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			catalog := invariants.DefaultCatalog()
			if strings.TrimSpace(catalogPath) != "" {
				catalog, err = invariants.LoadCatalog(catalogPath)
				if err != nil {
					return nil, exitInvalidInput, err
				}
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
			report, err := invariants.CheckWith(catalog, stored, plan, view)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			env.metrics.ObserveInvariants(report)
			output := checkOutput{OK: true, Report: report}
			if save {
				output.ReportID, err = store.SaveReport(ctx, env.store, store.InvariantReports, report)
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			if !report.Pass {
				return output, exitVerifyFailed, nil
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&recipeID, "recipe", "", "recipe id")
	command.Flags().StringVar(&catalogPath, "catalog", "", "invariant catalog YAML (default: built-in catalog)")
	command.Flags().BoolVar(&save, "save", false, "append the report to the record store")
	return command
}
