package main

import (
	"fmt"
	"strings"

	"github.com/davidahmann/contextos/core/invariants"
	"github.com/davidahmann/contextos/core/regress"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	"github.com/davidahmann/contextos/core/store"
	"github.com/spf13/cobra"
)

type regressInitOutput struct {
	OK           bool                  `json:"ok"`
	ProfilePath  string                `json:"profile_path"`
	Profile      schemaregress.Profile `json:"profile"`
	NextCommands []string              `json:"next_commands,omitempty"`
}

func (o regressInitOutput) lines() []string {
	text := []string{
		"profile written: " + o.ProfilePath,
		"baseline plan hash: " + o.Profile.BaselinePlanHash,
	}
	for _, next := range o.NextCommands {
		text = append(text, "next: "+next)
	}
	return text
}

type regressGateOutput struct {
	OK       bool                 `json:"ok"`
	Status   string               `json:"status"`
	DiffID   string               `json:"diff_id"`
	ReportID string               `json:"report_id,omitempty"`
	Report   schemaregress.Report `json:"report"`
}

func (o regressGateOutput) lines() []string {
	text := []string{fmt.Sprintf("regress %s vs %s: %s", o.Report.CandidateRecipeID, o.Report.BaselineRecipeID, o.Status)}
	for _, reason := range o.Report.Reasons {
		text = append(text, "  "+reason)
	}
	return text
}

type regressRunOutput struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status"`
	Suite       string `json:"suite"`
	Cases       int    `json:"cases"`
	FailedCases int    `json:"failed_cases"`
	Output      string `json:"output"`
	JUnit       string `json:"junit,omitempty"`
}

func (o regressRunOutput) lines() []string {
	text := []string{
		fmt.Sprintf("suite %s: %s (%d of %d cases failed)", o.Suite, o.Status, o.FailedCases, o.Cases),
		"result: " + o.Output,
	}
	if o.JUnit != "" {
		text = append(text, "junit: "+o.JUnit)
	}
	return text
}

func newRegressCommand(invocation *cli) *cobra.Command {
	command := &cobra.Command{
		Use:   "regress",
		Short: "Gate recorded recipes against a baseline profile",
	}
	command.AddCommand(newRegressInitCommand(invocation), newRegressGateCommand(invocation), newRegressRunCommand(invocation))
	return command
}

func newRegressInitCommand(invocation *cli) *cobra.Command {
	var baselineID, name, description string
	var expected []string
	var islandShift, tokenShift, anchorLoss float64
	command := &cobra.Command{
		Use:   "init",
		Short: "Write a regression profile from a baseline recipe",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("regress init", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			thresholds := schemaregress.DriftThresholds{
				IslandShift:            islandShift,
				TokenDistributionShift: tokenShift,
				AnchorLoss:             anchorLoss,
			}
			result, err := regress.InitProfile(cmd.Context(), regress.InitOptions{
				Store:                  env.store,
				BaselineRecipeID:       baselineID,
				ProfileName:            name,
				WorkDir:                ".",
				Thresholds:             &thresholds,
				InvariantsExpectedPass: expected,
				Description:            description,
			})
			if err != nil {
				return nil, exitInvalidInput, err
			}
			return regressInitOutput{
				OK:           true,
				ProfilePath:  result.ProfilePath,
				Profile:      result.Profile,
				NextCommands: result.NextCommands,
			}, exitOK, nil
		}),
	}
	command.Flags().StringVar(&baselineID, "baseline", "", "baseline recipe id")
	command.Flags().StringVar(&name, "name", "", "profile name (default: derived from the recipe id)")
	command.Flags().StringVar(&description, "description", "", "profile description")
	command.Flags().StringSliceVar(&expected, "expect-pass", nil, "invariant id expected to hold on candidates")
	command.Flags().Float64Var(&islandShift, "island-shift", regress.DefaultThresholds.IslandShift, "island_shift threshold")
	command.Flags().Float64Var(&tokenShift, "token-shift", regress.DefaultThresholds.TokenDistributionShift, "token_distribution_shift threshold")
	command.Flags().Float64Var(&anchorLoss, "anchor-loss", regress.DefaultThresholds.AnchorLoss, "anchor_loss threshold")
	return command
}

func newRegressGateCommand(invocation *cli) *cobra.Command {
	var profilePath, candidateID, catalogPath string
	var save bool
	command := &cobra.Command{
		Use:   "gate",
		Short: "Gate one candidate recipe against a profile",
		Long: `Gate one candidate recipe against a regression profile.
Exits 5 when the candidate regresses.`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("regress gate", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(profilePath) == "" || strings.TrimSpace(candidateID) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("regress gate requires --profile and --candidate"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			catalog, err := loadCatalogFlag(catalogPath)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			profile, err := regress.LoadProfile(profilePath)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			ctx := cmd.Context()
			baseline, baselinePlan, err := store.LoadRecipeWithPlan(ctx, env.store, profile.BaselineRecipeID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			candidate, candidatePlan, err := store.LoadRecipeWithPlan(ctx, env.store, candidateID)
			if err != nil {
				return nil, exitMissingDependency, err
			}
			result, err := regress.Gate(regress.GateInput{
				BaselineRecipe:  baseline,
				CandidateRecipe: candidate,
				BaselinePlan:    baselinePlan,
				CandidatePlan:   candidatePlan,
				Profile:         profile,
				ViewLookup:      env.lookupView,
				Catalog:         catalog,
			})
			if err != nil {
				return nil, exitInvalidInput, err
			}
			env.metrics.ObserveInvariants(result.Invariants)
			output := regressGateOutput{OK: true, Status: regress.StatusPass, DiffID: result.DiffID, Report: result.Report}
			if save {
				output.ReportID, err = store.SaveReport(ctx, env.store, store.RegressionReports, result.Report)
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			if !result.Report.Pass {
				output.Status = regress.StatusFail
				return output, exitRegressFailed, nil
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&profilePath, "profile", "", "regression profile YAML")
	command.Flags().StringVar(&candidateID, "candidate", "", "candidate recipe id")
	command.Flags().StringVar(&catalogPath, "catalog", "", "invariant catalog YAML (default: built-in catalog)")
	command.Flags().BoolVar(&save, "save", false, "append the report to the record store")
	return command
}

func newRegressRunCommand(invocation *cli) *cobra.Command {
	var suitePath, outputPath, junitPath, catalogPath string
	command := &cobra.Command{
		Use:   "run",
		Short: "Run a regression suite and write JSON and JUnit results",
		Long: `Run every case of a regression suite. Exits 5 when any case fails.

Suite format:
  suite: nightly
  cases:
    - name: chat-baseline
      profile: .contextos/regress/chat.yaml
      candidate_recipe_id: recipe-42`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("regress run", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(suitePath) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("regress run requires --suite"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			catalog, err := loadCatalogFlag(catalogPath)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			result, err := regress.RunSuite(cmd.Context(), regress.RunOptions{
				SuitePath:       suitePath,
				OutputPath:      outputPath,
				JUnitPath:       junitPath,
				WorkDir:         ".",
				ProducerVersion: version,
				Store:           env.store,
				ViewLookup:      env.lookupView,
				Catalog:         catalog,
				Logger:          env.logger,
			})
			if err != nil {
				return nil, exitInvalidInput, err
			}
			env.metrics.ObserveSuite(result.Result)
			output := regressRunOutput{
				OK:          true,
				Status:      result.Result.Status,
				Suite:       result.Result.Suite,
				Cases:       len(result.Result.Cases),
				FailedCases: result.FailedCases,
				Output:      result.OutputPath,
				JUnit:       result.JUnitPath,
			}
			if result.FailedCases > 0 {
				return output, exitRegressFailed, nil
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&suitePath, "suite", "", "regression suite YAML")
	command.Flags().StringVar(&outputPath, "output", "", "result JSON path (default: regress_result.json)")
	command.Flags().StringVar(&junitPath, "junit", "", "JUnit XML path")
	command.Flags().StringVar(&catalogPath, "catalog", "", "invariant catalog YAML (default: built-in catalog)")
	return command
}

// loadCatalogFlag returns nil for an empty path so callers fall back to the
// built-in catalog.
func loadCatalogFlag(path string) ([]schemainvariant.Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	return invariants.LoadCatalog(path)
}
