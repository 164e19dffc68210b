package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/contextos/core/compare"
	"github.com/davidahmann/contextos/core/contextproof"
	schemacomparison "github.com/davidahmann/contextos/core/schema/v1/comparison"
	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	"github.com/davidahmann/contextos/core/store"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// experimentFile is the YAML document accepted by compare --experiment.
type experimentFile struct {
	ExperimentID  string                             `yaml:"experiment_id"`
	Message       string                             `yaml:"message"`
	StableAnchors []schemacontext.Anchor             `yaml:"stable_anchors"`
	Variants      []schemacomparison.StrategyVariant `yaml:"variants"`
}

type compareOutput struct {
	OK       bool                    `json:"ok"`
	ReportID string                  `json:"report_id,omitempty"`
	Report   schemacomparison.Report `json:"report"`
}

func (o compareOutput) lines() []string {
	text := []string{fmt.Sprintf("compared %d variants (input %s)", len(o.Report.Variants), o.Report.InputHash)}
	for _, variant := range o.Report.Variants {
		text = append(text, fmt.Sprintf("  %s: %d of %d tokens, anchor retention %.2f", variant.VariantID, variant.TokenReport.UsedTotal, variant.TokenReport.BudgetTotal, variant.AnchorRetention))
	}
	for _, pair := range o.Report.PairwiseDiffs {
		text = append(text, fmt.Sprintf("  %s -> %s drift confidence %.3f", pair.FromVariant, pair.ToVariant, pair.DriftConfidence))
	}
	if o.Report.HeuristicWinner != "" {
		text = append(text, "winner: "+o.Report.HeuristicWinner)
	}
	return text
}

func newCompareCommand(invocation *cli) *cobra.Command {
	var experimentPath, candidatesPath string
	var save bool
	command := &cobra.Command{
		Use:   "compare",
		Short: "Plan one candidate pool under several strategy variants and compare them",
		Long: `Plan one candidate pool under every variant of an experiment and diff the
results pairwise within each planner variant.

Experiment format:
  experiment_id: weights-sweep
  message: summarize the incident
  variants:
    - planner_variant_id: v1
      view_variant_id: chat
    - planner_variant_id: v1
      view_variant_id: debug
      policy_overrides:
        window: {stream_recent: 4, stream_middle: 0}`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("compare", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			if strings.TrimSpace(experimentPath) == "" || strings.TrimSpace(candidatesPath) == "" {
				return nil, exitInvalidInput, usageError(fmt.Errorf("compare requires --experiment and --candidates"))
			}
			env, err := invocation.environment()
			if err != nil {
				return nil, exitInternalFailure, err
			}
			experiment, err := loadExperiment(experimentPath)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			candidates, err := contextproof.LoadCandidates(candidatesPath)
			if err != nil {
				return nil, exitInvalidInput, err
			}
			report, err := compare.Run(compare.Input{
				ExperimentID:  experiment.ExperimentID,
				Message:       experiment.Message,
				Candidates:    candidates,
				StableAnchors: experiment.StableAnchors,
				Window:        schemacontext.Window{StreamRecent: env.config.Planner.StreamRecent, StreamMiddle: env.config.Planner.StreamMiddle},
				Variants:      experiment.Variants,
				ViewLookup:    env.lookupView,
			})
			if err != nil {
				return nil, exitInvalidInput, err
			}
			for _, variant := range report.Variants {
				env.metrics.ObservePlan(variant.Recipe.ViewID, variant.Plan)
			}
			output := compareOutput{OK: true, Report: report}
			if save {
				output.ReportID, err = store.SaveReport(cmd.Context(), env.store, store.ComparisonReports, report)
				if err != nil {
					return nil, exitInternalFailure, err
				}
			}
			return output, exitOK, nil
		}),
	}
	command.Flags().StringVar(&experimentPath, "experiment", "", "experiment YAML path")
	command.Flags().StringVar(&candidatesPath, "candidates", "", "candidate pool JSON path")
	command.Flags().BoolVar(&save, "save", false, "append the report to the record store")
	return command
}

func loadExperiment(path string) (experimentFile, error) {
	// #nosec G304 -- path is explicit local user input.
	content, err := os.ReadFile(path)
	if err != nil {
		return experimentFile{}, invalidInput(fmt.Errorf("read experiment: %w", err), "invalid_experiment")
	}
	var experiment experimentFile
	if err := yaml.Unmarshal(content, &experiment); err != nil {
		return experimentFile{}, invalidInput(fmt.Errorf("parse experiment: %w", err), "invalid_experiment")
	}
	if strings.TrimSpace(experiment.ExperimentID) == "" {
		return experimentFile{}, invalidInput(fmt.Errorf("experiment_id is required"), "invalid_experiment")
	}
	return experiment, nil
}
