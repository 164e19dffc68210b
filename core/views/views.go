// Package views loads view definitions from a YAML or JSON index of the form
// {views: [...]}.
package views

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	schemaview "github.com/davidahmann/contextos/core/schema/v1/view"
	"github.com/davidahmann/contextos/core/schema/validate"
	"github.com/goccy/go-yaml"
)

//go:embed defaults.yaml
var defaultIndex []byte

// Defaults returns the built-in chat, plan and debug views.
func Defaults() ([]schemaview.Definition, error) {
	return Parse(defaultIndex)
}

// Load reads the index at path, or the built-in views when path is empty.
func Load(path string) ([]schemaview.Definition, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults()
	}
	// #nosec G304 -- view index path is provided by the caller.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("read views: %w", err), coreerrors.CategoryIOFailure, "views_unreadable", "check views.path in the project config", false)
	}
	return Parse(content)
}

// Parse decodes an index and validates each view against the view schema.
// View ids must be unique.
func Parse(content []byte) ([]schemaview.Definition, error) {
	asJSON, err := yaml.YAMLToJSON(content)
	if err != nil {
		return nil, invalidView(fmt.Errorf("parse views: %w", err))
	}
	var index struct {
		Views []json.RawMessage `json:"views"`
	}
	if err := json.Unmarshal(asJSON, &index); err != nil {
		return nil, invalidView(fmt.Errorf("decode views: %w", err))
	}
	if len(index.Views) == 0 {
		return nil, invalidView(fmt.Errorf("view index has no views"))
	}
	definitions := make([]schemaview.Definition, 0, len(index.Views))
	seen := map[string]struct{}{}
	for position, raw := range index.Views {
		if err := validate.ValidateJSON(validate.SchemaView, raw); err != nil {
			return nil, invalidView(fmt.Errorf("view %d: %w", position, err))
		}
		var definition schemaview.Definition
		if err := json.Unmarshal(raw, &definition); err != nil {
			return nil, invalidView(fmt.Errorf("view %d: %w", position, err))
		}
		if _, ok := seen[definition.ID]; ok {
			return nil, invalidView(fmt.Errorf("duplicate view id %s", definition.ID))
		}
		seen[definition.ID] = struct{}{}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func Find(views []schemaview.Definition, id string) (schemaview.Definition, error) {
	for _, view := range views {
		if view.ID == id {
			return view, nil
		}
	}
	return schemaview.Definition{}, coreerrors.NotFound(fmt.Errorf("view %s is not defined", id))
}

// Lookup binds Find to views.
func Lookup(views []schemaview.Definition) func(id string) (schemaview.Definition, error) {
	return func(id string) (schemaview.Definition, error) {
		return Find(views, id)
	}
}

func invalidView(err error) error {
	return coreerrors.InvalidInput(err, coreerrors.CodeInvalidView)
}
