package main

import (
	"fmt"

	"github.com/davidahmann/contextos/core/doctor"
	"github.com/spf13/cobra"
)

type doctorOutput struct {
	OK bool `json:"ok"`
	doctor.Result
}

func (o doctorOutput) lines() []string {
	lines := []string{o.Summary}
	for _, check := range o.Checks {
		lines = append(lines, fmt.Sprintf("%-16s %-4s %s", check.Name, check.Status, check.Message))
	}
	for _, fix := range o.FixCommands {
		lines = append(lines, "fix: "+fix)
	}
	return lines
}

func newDoctorCommand(invocation *cli) *cobra.Command {
	var workDir string
	command := &cobra.Command{
		Use:   "doctor",
		Short: "Check config, views, record store and signing keys",
		Long: `Inspect the workspace without planning anything. Warnings leave the exit
code at 0; a failing check exits 7.`,
		Args: cobra.NoArgs,
		RunE: invocation.handler("doctor", func(cmd *cobra.Command, _ []string) (reporter, int, error) {
			result := doctor.Run(cmd.Context(), doctor.Options{
				WorkDir:         workDir,
				ConfigPath:      invocation.configPath,
				ProducerVersion: version,
			})
			exitCode := exitOK
			if result.Status == doctor.StatusFail {
				exitCode = exitMissingDependency
			}
			return doctorOutput{OK: result.Status != doctor.StatusFail, Result: result}, exitCode, nil
		}),
	}
	command.Flags().StringVar(&workDir, "workdir", ".", "workspace directory to inspect")
	return command
}
