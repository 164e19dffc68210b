package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/davidahmann/contextos/core/schema/validate"
	"github.com/spf13/cobra"
)

type validateOutput struct {
	OK     bool   `json:"ok"`
	Schema string `json:"schema"`
	Path   string `json:"path"`
	Lines  bool   `json:"jsonl,omitempty"`
}

func (o validateOutput) lines() []string {
	return []string{fmt.Sprintf("%s: valid %s", o.Path, o.Schema)}
}

func newValidateCommand(invocation *cli) *cobra.Command {
	var schemaName string
	var jsonl bool
	command := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a JSON or JSONL artifact against an embedded schema",
		Long: fmt.Sprintf(`Validate a JSON or JSONL artifact against an embedded schema.

Schemas: %s`, strings.Join(validate.Names(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: invocation.handler("validate", func(_ *cobra.Command, args []string) (reporter, int, error) {
			if !slices.Contains(validate.Names(), schemaName) {
				return nil, exitInvalidInput, usageError(fmt.Errorf("unknown schema %q (expected one of %s)", schemaName, strings.Join(validate.Names(), ", ")))
			}
			path := args[0]
			var err error
			if jsonl {
				err = validate.ValidateJSONLFile(schemaName, path)
			} else {
				err = validate.ValidateJSONFile(schemaName, path)
			}
			if err != nil {
				return nil, exitInvalidInput, invalidInput(err, "schema_validation_failed")
			}
			return validateOutput{OK: true, Schema: schemaName, Path: path, Lines: jsonl}, exitOK, nil
		}),
	}
	command.Flags().StringVar(&schemaName, "schema", validate.SchemaRecipe, "schema name")
	command.Flags().BoolVar(&jsonl, "jsonl", false, "validate every line of a JSONL file")
	return command
}
