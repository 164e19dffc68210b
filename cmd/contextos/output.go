package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/spf13/cobra"
)

const (
	exitOK                = 0
	exitInternalFailure   = 1
	exitVerifyFailed      = 2
	exitRegressFailed     = 5
	exitInvalidInput      = 6
	exitMissingDependency = 7
)

// reporter is a command result. lines renders it for humans; the JSON form is
// the struct itself.
type reporter interface {
	lines() []string
}

type errorOutput struct {
	OK            bool   `json:"ok"`
	Command       string `json:"command"`
	Error         string `json:"error"`
	ErrorCode     string `json:"error_code"`
	ErrorCategory string `json:"error_category"`
	Hint          string `json:"hint"`
	Retryable     bool   `json:"retryable"`
}

func (o errorOutput) lines() []string {
	text := []string{fmt.Sprintf("%s error: %s", o.Command, o.Error)}
	if o.Hint != "" {
		text = append(text, "hint: "+o.Hint)
	}
	return text
}

type commandFunc func(cmd *cobra.Command, args []string) (reporter, int, error)

// handler adapts a command body to cobra. Errors are rendered here and never
// returned to cobra, so Execute only fails for usage problems.
func (c *cli) handler(command string, body commandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		output, exitCode, err := body(cmd, args)
		if err != nil {
			c.fail(command, err, exitCodeForError(err, exitCode))
			return nil
		}
		c.write(output)
		c.exitCode = exitCode
		return nil
	}
}

func (c *cli) fail(command string, err error, exitCode int) int {
	category := coreerrors.CategoryOf(err)
	if category == "" {
		category = defaultErrorCategory(exitCode)
	}
	code := coreerrors.CodeOf(err)
	if code == "" {
		code = defaultErrorCode(exitCode)
	}
	hint := coreerrors.HintOf(err)
	if hint == "" {
		hint = defaultHint(exitCode)
	}
	output := errorOutput{
		OK:            false,
		Command:       command,
		Error:         err.Error(),
		ErrorCode:     code,
		ErrorCategory: string(category),
		Hint:          hint,
		Retryable:     coreerrors.RetryableOf(err) || defaultRetryable(category),
	}
	if c.env != nil {
		c.env.metrics.ObserveCommandError(command, string(category))
	}
	c.logger().Debug("command failed", "command", command, "error_code", code, "error_category", category)
	if c.jsonOutput {
		c.write(output)
	} else {
		for _, line := range output.lines() {
			fmt.Fprintln(c.stderr, line)
		}
	}
	c.exitCode = exitCode
	return exitCode
}

func (c *cli) write(output reporter) {
	if !c.jsonOutput {
		for _, line := range output.lines() {
			fmt.Fprintln(c.stdout, line)
		}
		return
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		fmt.Fprintln(c.stdout, `{"ok":false,"error":"failed to encode output","error_code":"encode_failed","error_category":"internal_failure","retryable":false}`)
		return
	}
	fmt.Fprintln(c.stdout, string(encoded))
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryRegression:
		return exitRegressFailed
	case coreerrors.CategoryDependencyMissing:
		return exitMissingDependency
	case coreerrors.CategoryIOFailure, coreerrors.CategoryStateContention, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func defaultErrorCategory(exitCode int) coreerrors.Category {
	switch exitCode {
	case exitInvalidInput:
		return coreerrors.CategoryInvalidInput
	case exitVerifyFailed:
		return coreerrors.CategoryVerification
	case exitRegressFailed:
		return coreerrors.CategoryRegression
	case exitMissingDependency:
		return coreerrors.CategoryDependencyMissing
	default:
		return coreerrors.CategoryInternalFailure
	}
}

func defaultErrorCode(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "invalid_input"
	case exitVerifyFailed:
		return "verification_failed"
	case exitRegressFailed:
		return "regress_failed"
	case exitMissingDependency:
		return "dependency_missing"
	default:
		return "internal_failure"
	}
}

func defaultHint(exitCode int) string {
	switch exitCode {
	case exitInvalidInput:
		return "check command usage and input schema"
	case exitVerifyFailed:
		return "re-run verify after checking artifact integrity"
	case exitRegressFailed:
		return "inspect the regression reasons and the recorded diff"
	case exitMissingDependency:
		return "check the record id, view id or key configuration"
	default:
		return "retry after checking local environment and logs"
	}
}

func defaultRetryable(category coreerrors.Category) bool {
	return category == coreerrors.CategoryStateContention
}

func usageError(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "invalid_input", "check command usage and input schema", false)
}

func invalidInput(err error, code string) error {
	return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, code, "check command usage and input schema", false)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
