package views

import (
	"path/filepath"
	"testing"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/internal/testutil"
)

func TestDefaults(t *testing.T) {
	defaults, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if len(defaults) != 3 {
		t.Fatalf("expected three built-in views, got %d", len(defaults))
	}
	plan, err := Find(defaults, "plan")
	if err != nil {
		t.Fatalf("find plan: %v", err)
	}
	if plan.Freeze == nil || !plan.Freeze.Planner || plan.Policy.Context.MaxTokens != 6000 {
		t.Fatalf("unexpected plan view: %+v", plan)
	}
	debug, err := Lookup(defaults)("debug")
	if err != nil {
		t.Fatalf("lookup debug: %v", err)
	}
	if !debug.Policy.Runtime.AllowRag || debug.Policy.Context.Weights.Rag != 0.2 {
		t.Fatalf("unexpected debug view: %+v", debug)
	}
}

func TestLoadJSONIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.json")
	testutil.WriteJSON(t, path, map[string]any{"views": []any{testutil.View("support")}})
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "support" || loaded[0].Policy.Context.Weights != testutil.View("support").Policy.Context.Weights {
		t.Fatalf("unexpected views: %+v", loaded)
	}
}

func TestParseRejectsInvalidIndexes(t *testing.T) {
	cases := map[string]string{
		"syntax":     "views: [",
		"empty":      "views: []\n",
		"no-policy":  "views:\n  - {id: a, version: '1', label: A}\n",
		"bad-weight": "views:\n  - {id: a, version: '1', label: A, policy: {context: {max_tokens: 10, weights: {anchors: -1, stream: 0, islands: 0, memory: 0, rag: 0}}, runtime: {}}}\n",
		"duplicate":  "views:\n  - {id: a, version: '1', label: A, policy: {context: {max_tokens: 10, weights: {anchors: 1, stream: 0, islands: 0, memory: 0, rag: 0}}, runtime: {}}}\n  - {id: a, version: '2', label: A, policy: {context: {max_tokens: 10, weights: {anchors: 1, stream: 0, islands: 0, memory: 0, rag: 0}}, runtime: {}}}\n",
	}
	for name, content := range cases {
		if _, err := Parse([]byte(content)); coreerrors.CodeOf(err) != coreerrors.CodeInvalidView {
			t.Fatalf("%s: expected invalid view, got %v", name, err)
		}
	}
}

func TestFindMissing(t *testing.T) {
	if _, err := Find(nil, "nope"); coreerrors.CategoryOf(err) != coreerrors.CategoryDependencyMissing {
		t.Fatalf("expected missing view, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); coreerrors.CategoryOf(err) != coreerrors.CategoryIOFailure {
		t.Fatalf("expected io failure, got %v", err)
	}
}
