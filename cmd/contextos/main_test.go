package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/contextos/internal/testutil"
)

func TestRunDispatch(t *testing.T) {
	withWorkingDir(t, t.TempDir())
	cases := []struct {
		arguments []string
		exitCode  int
	}{
		{[]string{"contextos"}, exitOK},
		{[]string{"contextos", "version"}, exitOK},
		{[]string{"contextos", "--version"}, exitOK},
		{[]string{"contextos", "unknown"}, exitInvalidInput},
		{[]string{"contextos", "plan", "--help"}, exitOK},
		{[]string{"contextos", "regress", "run", "--help"}, exitOK},
		{[]string{"contextos", "plan", "--no-such-flag"}, exitInvalidInput},
		{[]string{"contextos", "plan"}, exitInvalidInput},
		{[]string{"contextos", "validate", "--schema", "nope", "x.json"}, exitInvalidInput},
	}
	for _, tc := range cases {
		var stdout, stderr bytes.Buffer
		if code := run(tc.arguments, &stdout, &stderr); code != tc.exitCode {
			t.Fatalf("%v: expected exit %d got %d (stdout=%q stderr=%q)", tc.arguments, tc.exitCode, code, stdout.String(), stderr.String())
		}
	}
}

func TestVersionJSON(t *testing.T) {
	withWorkingDir(t, t.TempDir())
	var output versionOutput
	runJSON(t, exitOK, &output, "version")
	if !output.OK || output.Version != version {
		t.Fatalf("unexpected version output: %#v", output)
	}
}

func TestErrorEnvelope(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	var output errorOutput
	runJSON(t, exitMissingDependency, &output, "replay", "--recipe", "missing")
	if output.OK || output.ErrorCode != "record_not_found" || output.ErrorCategory != "dependency_missing" || output.Hint == "" || output.Retryable {
		t.Fatalf("unexpected error envelope: %#v", output)
	}

	runJSON(t, exitMissingDependency, &output, "plan", "--view", "nope", "--candidates", "pool.json")
	if output.Command != "plan" || output.ErrorCategory != "dependency_missing" {
		t.Fatalf("unexpected unknown-view envelope: %#v", output)
	}

	testutil.WriteFile(t, filepath.Join(workDir, "bad.json"), []byte(`{"stream":[{"id":"s1","extra":true}]}`))
	runJSON(t, exitInvalidInput, &output, "plan", "--view", "chat", "--candidates", "bad.json")
	if output.ErrorCode != "invalid_candidates" {
		t.Fatalf("unexpected invalid pool envelope: %#v", output)
	}
}

func TestPlanReplayCheckFlow(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	planned := planTurn(t, "r1", "req-1")
	if !planned.Persisted || planned.Signed {
		t.Fatalf("unexpected plan output: %#v", planned)
	}
	if planned.PlanID != "req-1-plan" || planned.TokenReport.UsedTotal != 740 || planned.TokenReport.BudgetTotal != 1000 {
		t.Fatalf("unexpected plan totals: %#v", planned)
	}
	if planned.DroppedItems != 4 {
		t.Fatalf("expected two stream and two island drops, got %d", planned.DroppedItems)
	}

	var replayed replayOutput
	runJSON(t, exitOK, &replayed, "replay", "--recipe", "r1", "--show-candidates", "--privacy", "hashes")
	if !replayed.Replay.PromptMatches || replayed.SnapshotStatus != "verified" {
		t.Fatalf("unexpected replay: %#v", replayed)
	}
	if replayed.Candidates == nil || !strings.HasPrefix(replayed.Candidates.Stream[0].Content, "sha256:") {
		t.Fatalf("expected hashed candidate content, got %#v", replayed.Candidates)
	}

	var checked checkOutput
	runJSON(t, exitOK, &checked, "check", "--recipe", "r1", "--save")
	if !checked.Report.Pass || checked.ReportID == "" {
		t.Fatalf("unexpected check: %#v", checked)
	}
	if _, err := os.Stat(filepath.Join(workDir, ".contextos", "data", "invariant_reports.jsonl")); err != nil {
		t.Fatalf("expected saved invariant report: %v", err)
	}
}

func TestDiffDriftAndRegress(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	planTurn(t, "r1", "req-1")
	planTurn(t, "r2", "req-2", "--exclude-island", "i1")

	var same diffOutput
	runJSON(t, exitOK, &same, "diff", "--from", "r1", "--to", "r1")
	if !same.Empty || same.CandidateDrift != "none" {
		t.Fatalf("expected empty self diff, got %#v", same)
	}

	var changed diffOutput
	runJSON(t, exitOK, &changed, "diff", "--from", "r1", "--to", "r2", "--save")
	if changed.Empty || changed.ReportID != changed.DiffID {
		t.Fatalf("unexpected diff: %#v", changed)
	}
	if strings.Join(changed.Diff.ContextSelection.AddedIslands, ",") != "i4" || strings.Join(changed.Diff.ContextSelection.RemovedIslands, ",") != "i1" {
		t.Fatalf("unexpected island changes: %#v", changed.Diff.ContextSelection)
	}

	var drifted driftOutput
	runJSON(t, exitOK, &drifted, "drift", "--reference", "r1", "--current", "r2")
	if drifted.Report.ReferenceRecipeID != "r1" || drifted.Report.Confidence <= 0 {
		t.Fatalf("unexpected drift: %#v", drifted)
	}

	var initialized regressInitOutput
	runJSON(t, exitOK, &initialized, "regress", "init", "--baseline", "r1", "--name", "chat", "--island-shift", "0.1")
	if initialized.ProfilePath != ".contextos/regress/chat.yaml" || initialized.Profile.BaselinePlanHash == "" {
		t.Fatalf("unexpected init: %#v", initialized)
	}

	var passed regressGateOutput
	runJSON(t, exitOK, &passed, "regress", "gate", "--profile", initialized.ProfilePath, "--candidate", "r1")
	if passed.Status != "pass" || len(passed.Report.Reasons) != 0 {
		t.Fatalf("unexpected gate pass: %#v", passed)
	}

	var failed regressGateOutput
	runJSON(t, exitRegressFailed, &failed, "regress", "gate", "--profile", initialized.ProfilePath, "--candidate", "r2", "--save")
	if failed.Status != "fail" || failed.ReportID == "" || !strings.Contains(strings.Join(failed.Report.Reasons, ";"), "island_shift") {
		t.Fatalf("unexpected gate failure: %#v", failed)
	}

	testutil.WriteFile(t, filepath.Join(workDir, "suite.yaml"), []byte(`suite: nightly
cases:
  - name: same
    profile: .contextos/regress/chat.yaml
    candidate_recipe_id: r1
  - name: excluded
    profile: .contextos/regress/chat.yaml
    candidate_recipe_id: r2
`))
	var suite regressRunOutput
	runJSON(t, exitRegressFailed, &suite, "regress", "run", "--suite", "suite.yaml", "--output", "out/result.json", "--junit", "out/junit.xml")
	if suite.Cases != 2 || suite.FailedCases != 1 || suite.Status != "fail" {
		t.Fatalf("unexpected suite output: %#v", suite)
	}
	if !strings.Contains(string(testutil.MustReadFile(t, filepath.Join(workDir, "out", "junit.xml"))), "<testsuite") {
		t.Fatalf("expected junit xml")
	}
}

func TestSignAndVerify(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	var keys keysInitOutput
	runJSON(t, exitOK, &keys, "keys", "init", "--out-dir", "keys")
	if keys.KeyID == "" {
		t.Fatalf("expected key id")
	}
	testutil.WriteFile(t, filepath.Join(workDir, ".contextos", "config.yaml"), []byte(`views:
  path: views.json
signing:
  key_mode: prod
  private_key: keys/contextos_private.key
  public_key: keys/contextos_public.key
`))

	signed := planTurn(t, "r-signed", "req-signed", "--sign")
	if !signed.Signed {
		t.Fatalf("expected signed recipe")
	}
	var verified verifyOutput
	runJSON(t, exitOK, &verified, "verify", "--recipe", "r-signed")
	if verified.KeyID != keys.KeyID {
		t.Fatalf("unexpected verify output: %#v", verified)
	}

	planTurn(t, "r-plain", "req-plain")
	var unsigned errorOutput
	runJSON(t, exitVerifyFailed, &unsigned, "verify", "--recipe", "r-plain")
	if unsigned.ErrorCode != "recipe_unsigned" || unsigned.ErrorCategory != "verification_failed" {
		t.Fatalf("unexpected unsigned envelope: %#v", unsigned)
	}
}

func TestCompareAndValidate(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	testutil.WriteFile(t, filepath.Join(workDir, "experiment.yaml"), []byte(`experiment_id: sweep
message: what next?
variants:
  - planner_variant_id: v1
    view_variant_id: chat
  - planner_variant_id: v1
    view_variant_id: chat
    policy_overrides:
      weights: {anchors: 0.1, stream: 0.4, islands: 0.1, memory: 0.1, rag: 0.1}
  - planner_variant_id: v2
    view_variant_id: chat
`))
	var compared compareOutput
	runJSON(t, exitOK, &compared, "compare", "--experiment", "experiment.yaml", "--candidates", "pool.json", "--save")
	if len(compared.Report.Variants) != 3 || len(compared.Report.PairwiseDiffs) != 1 || compared.ReportID == "" {
		t.Fatalf("unexpected comparison: %#v", compared)
	}
	if compared.Report.Variants[1].TokenReport.UsedTotal != 540 {
		t.Fatalf("expected overridden weights to select one island, got %d", compared.Report.Variants[1].TokenReport.UsedTotal)
	}

	testutil.WriteJSON(t, filepath.Join(workDir, "view.json"), testutil.View("support"))
	var validated validateOutput
	runJSON(t, exitOK, &validated, "validate", "--schema", "view", "view.json")
	if !validated.OK || validated.Schema != "view" {
		t.Fatalf("unexpected validate output: %#v", validated)
	}
	testutil.WriteFile(t, filepath.Join(workDir, "broken.json"), []byte(`{"id":"x"}`))
	var invalid errorOutput
	runJSON(t, exitInvalidInput, &invalid, "validate", "--schema", "view", "broken.json")
	if invalid.ErrorCode != "schema_validation_failed" {
		t.Fatalf("unexpected validation envelope: %#v", invalid)
	}
}

func TestTextOutput(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	var stdout, stderr bytes.Buffer
	code := run([]string{"contextos", "plan", "--view", "chat", "--candidates", "pool.json", "--recipe-id", "r1"}, &stdout, &stderr)
	if code != exitOK || !strings.Contains(stdout.String(), "tokens: 740 of 1000 used") {
		t.Fatalf("unexpected text output (%d): %q %q", code, stdout.String(), stderr.String())
	}
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"contextos", "check", "--recipe", "missing"}, &stdout, &stderr)
	if code != exitMissingDependency || !strings.Contains(stderr.String(), "check error:") {
		t.Fatalf("unexpected text error (%d): %q", code, stderr.String())
	}
}

func TestMetricsTextfile(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)
	testutil.WriteFile(t, filepath.Join(workDir, ".contextos", "config.yaml"), []byte("views:\n  path: views.json\nmetrics:\n  textfile: metrics/contextos.prom\n"))

	planTurn(t, "r1", "req-1")
	content := string(testutil.MustReadFile(t, filepath.Join(workDir, "metrics", "contextos.prom")))
	if !strings.Contains(content, `contextos_planner_plans_total{view="chat"} 1`) {
		t.Fatalf("unexpected metrics textfile:\n%s", content)
	}
}

func TestDoctor(t *testing.T) {
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	writeWorkspace(t, workDir)

	var output doctorOutput
	runJSON(t, exitOK, &output, "doctor")
	if !output.OK || output.Status != "warn" || len(output.Checks) != 6 {
		t.Fatalf("unexpected doctor output: %#v", output)
	}

	runJSON(t, exitOK, &keysInitOutput{}, "keys", "init")
	testutil.WriteFile(t, filepath.Join(workDir, ".contextos", "config.yaml"), []byte(`views:
  path: views.json
signing:
  private_key: .contextos/keys/contextos_private.key
  public_key: .contextos/keys/contextos_public.key
`))
	output = doctorOutput{}
	runJSON(t, exitOK, &output, "doctor")
	if output.Status != "pass" {
		t.Fatalf("expected pass after keys init: %#v", output.Checks)
	}

	output = doctorOutput{}
	runJSON(t, exitMissingDependency, &output, "--config", "missing.yaml", "doctor")
	if output.OK || output.Status != "fail" {
		t.Fatalf("expected failing doctor: %#v", output)
	}
}

// writeWorkspace seeds a config, a single-view index and the standard
// candidate pool.
func writeWorkspace(t *testing.T, workDir string) {
	t.Helper()
	testutil.WriteFile(t, filepath.Join(workDir, ".contextos", "config.yaml"), []byte("views:\n  path: views.json\n"))
	testutil.WriteJSON(t, filepath.Join(workDir, "views.json"), map[string]any{"views": []any{testutil.View("chat")}})
	testutil.WriteJSON(t, filepath.Join(workDir, "pool.json"), testutil.Candidates())
	anchors := testutil.StableAnchors("a1")
	testutil.WriteJSON(t, filepath.Join(workDir, "anchors.json"), anchors)
}

func planTurn(t *testing.T, recipeID, requestID string, extra ...string) planOutput {
	t.Helper()
	arguments := append([]string{
		"plan",
		"--view", "chat",
		"--candidates", "pool.json",
		"--anchors", "anchors.json",
		"--message", "what next?",
		"--recipe-id", recipeID,
		"--request-id", requestID,
	}, extra...)
	var output planOutput
	runJSON(t, exitOK, &output, arguments...)
	if output.RecipeID != recipeID {
		t.Fatalf("expected recipe %s, got %#v", recipeID, output)
	}
	return output
}

func runJSON(t *testing.T, expectedExit int, output any, arguments ...string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"contextos", "--json"}, arguments...), &stdout, &stderr)
	if code != expectedExit {
		t.Fatalf("%v: expected exit %d got %d\nstdout: %s\nstderr: %s", arguments, expectedExit, code, stdout.String(), stderr.String())
	}
	if err := json.Unmarshal(stdout.Bytes(), output); err != nil {
		t.Fatalf("%v: decode output: %v\n%s", arguments, err, stdout.String())
	}
}

func withWorkingDir(t *testing.T, path string) {
	t.Helper()
	current, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd: %v", err)
	}
	if err := os.Chdir(path); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(current)
	})
}
