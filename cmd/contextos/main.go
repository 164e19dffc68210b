package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(arguments []string, stdout, stderr io.Writer) int {
	invocation := &cli{stdout: stdout, stderr: stderr}
	defer invocation.close()

	root := newRootCommand(invocation)
	if len(arguments) > 1 {
		root.SetArgs(arguments[1:])
	} else {
		root.SetArgs([]string{})
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		// cobra reports flag and argument problems before a command runs.
		return invocation.fail("contextos", err, exitInvalidInput)
	}
	return invocation.exitCode
}

func newRootCommand(invocation *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "contextos",
		Short:         "Deterministic context planning, audit and regression for model calls",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(invocation.stdout, "contextos", version)
			return nil
		},
	}
	root.SetVersionTemplate("contextos {{.Version}}\n")
	root.PersistentFlags().StringVar(&invocation.configPath, "config", "", "project config path (default .contextos/config.yaml)")
	root.PersistentFlags().BoolVar(&invocation.jsonOutput, "json", false, "emit JSON output")
	root.PersistentFlags().BoolVar(&invocation.verbose, "verbose", false, "log at debug level")

	root.AddCommand(
		newPlanCommand(invocation),
		newReplayCommand(invocation),
		newDiffCommand(invocation),
		newDriftCommand(invocation),
		newCheckCommand(invocation),
		newRegressCommand(invocation),
		newCompareCommand(invocation),
		newValidateCommand(invocation),
		newVerifyCommand(invocation),
		newKeysCommand(invocation),
		newDoctorCommand(invocation),
		newVersionCommand(invocation),
	)
	return root
}

type versionOutput struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

func (o versionOutput) lines() []string {
	return []string{"contextos " + o.Version}
}

func newVersionCommand(invocation *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: invocation.handler("version", func(_ *cobra.Command, _ []string) (reporter, int, error) {
			return versionOutput{OK: true, Version: version}, exitOK, nil
		}),
	}
}
