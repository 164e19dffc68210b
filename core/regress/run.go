package regress

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	coreerrors "github.com/davidahmann/contextos/core/errors"
	"github.com/davidahmann/contextos/core/fsx"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	"github.com/davidahmann/contextos/core/store"
	"github.com/goccy/go-yaml"
)

const (
	StatusPass = "pass"
	StatusFail = "fail"

	resultSchemaID        = "contextos.regress.result"
	resultSchemaV1        = "1.0.0"
	defaultSuiteName      = "default"
	defaultRegressOutFile = "regress_result.json"
)

type RunOptions struct {
	SuitePath       string
	OutputPath      string
	JUnitPath       string
	WorkDir         string
	ProducerVersion string
	Store           store.Store
	ViewLookup      ViewLookup
	Catalog         []schemainvariant.Definition
	Logger          *slog.Logger
}

type RunResult struct {
	Result      schemaregress.SuiteResult
	OutputPath  string
	JUnitPath   string
	FailedCases int
}

type suiteFile struct {
	Suite string      `yaml:"suite"`
	Cases []suiteCase `yaml:"cases"`
}

type suiteCase struct {
	Name              string `yaml:"name"`
	Profile           string `yaml:"profile"`
	CandidateRecipeID string `yaml:"candidate_recipe_id"`
}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// RunSuite gates every case of a YAML suite against the store and writes the
// JSON result, plus JUnit XML when JUnitPath is set. A case that cannot be
// evaluated fails with reason case_error instead of aborting the suite.
func RunSuite(ctx context.Context, opts RunOptions) (RunResult, error) {
	if opts.Store == nil {
		return RunResult{}, fmt.Errorf("store is required")
	}
	if opts.ViewLookup == nil {
		return RunResult{}, fmt.Errorf("view lookup is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = defaultRegressOutFile
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(opts.SuitePath)
		if workDir == "" {
			workDir = "."
		}
	}
	producerVersion := opts.ProducerVersion
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	suite, err := readSuite(opts.SuitePath)
	if err != nil {
		return RunResult{}, err
	}

	cases := make([]schemaregress.CaseResult, 0, len(suite.Cases))
	failedCases := 0
	createdAt := time.Time{}
	for _, entry := range suite.Cases {
		caseResult, candidateTime := runCase(ctx, opts, workDir, entry)
		if candidateTime.After(createdAt) {
			createdAt = candidateTime
		}
		if caseResult.Status == StatusFail {
			failedCases++
		}
		logger.Info("regress case evaluated", "suite", suite.Suite, "case", entry.Name, "status", caseResult.Status)
		cases = append(cases, caseResult)
	}
	if createdAt.IsZero() {
		createdAt = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	status := StatusPass
	if failedCases > 0 {
		status = StatusFail
	}

	result := schemaregress.SuiteResult{
		SchemaID:        resultSchemaID,
		SchemaVersion:   resultSchemaV1,
		CreatedAt:       createdAt.UTC(),
		ProducerVersion: producerVersion,
		Suite:           suite.Suite,
		Status:          status,
		Cases:           cases,
	}
	if err := fsx.WriteJSONAtomic(outputPath, result, 0o600); err != nil {
		return RunResult{}, fmt.Errorf("write regress result: %w", err)
	}
	junitPath := strings.TrimSpace(opts.JUnitPath)
	if junitPath != "" {
		if err := writeJUnitReport(junitPath, result); err != nil {
			return RunResult{}, fmt.Errorf("write junit report: %w", err)
		}
	}
	return RunResult{
		Result:      result,
		OutputPath:  outputPath,
		JUnitPath:   junitPath,
		FailedCases: failedCases,
	}, nil
}

func runCase(ctx context.Context, opts RunOptions, workDir string, entry suiteCase) (schemaregress.CaseResult, time.Time) {
	profilePath := entry.Profile
	if !filepath.IsAbs(profilePath) {
		profilePath = filepath.Join(workDir, filepath.FromSlash(profilePath))
	}
	caseError := func(err error) schemaregress.CaseResult {
		return schemaregress.CaseResult{
			Name:    entry.Name,
			Status:  StatusFail,
			Reasons: []string{"case_error"},
			Details: map[string]any{
				"error":          err.Error(),
				"error_category": string(coreerrors.CategoryOf(err)),
			},
		}
	}
	profile, err := LoadProfile(profilePath)
	if err != nil {
		return caseError(err), time.Time{}
	}
	baselineRecipe, baselinePlan, err := store.LoadRecipeWithPlan(ctx, opts.Store, profile.BaselineRecipeID)
	if err != nil {
		return caseError(fmt.Errorf("load baseline: %w", err)), time.Time{}
	}
	candidateRecipe, candidatePlan, err := store.LoadRecipeWithPlan(ctx, opts.Store, entry.CandidateRecipeID)
	if err != nil {
		return caseError(fmt.Errorf("load candidate: %w", err)), time.Time{}
	}
	gateResult, err := Gate(GateInput{
		BaselineRecipe:  baselineRecipe,
		CandidateRecipe: candidateRecipe,
		BaselinePlan:    baselinePlan,
		CandidatePlan:   candidatePlan,
		Profile:         profile,
		ViewLookup:      opts.ViewLookup,
		Catalog:         opts.Catalog,
	})
	if err != nil {
		return caseError(err), candidateRecipe.Timestamp
	}
	status := StatusPass
	if !gateResult.Report.Pass {
		status = StatusFail
	}
	report := gateResult.Report
	return schemaregress.CaseResult{
		Name:    entry.Name,
		Status:  status,
		Reasons: report.Reasons,
		Report:  &report,
		Details: map[string]any{
			"diff_id":          gateResult.DiffID,
			"drift_confidence": gateResult.Drift.Confidence,
		},
	}, candidateRecipe.Timestamp
}

func readSuite(path string) (suiteFile, error) {
	// #nosec G304 -- suite path is provided by the caller.
	content, err := os.ReadFile(path)
	if err != nil {
		return suiteFile{}, coreerrors.Wrap(fmt.Errorf("read suite: %w", err), coreerrors.CategoryIOFailure, "suite_unreadable", "check the suite path", false)
	}
	var suite suiteFile
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("parse suite: %w", err), coreerrors.CodeInvalidProfile)
	}
	if strings.TrimSpace(suite.Suite) == "" {
		suite.Suite = defaultSuiteName
	}
	if len(suite.Cases) == 0 {
		return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("suite %s has no cases", suite.Suite), coreerrors.CodeInvalidProfile)
	}
	seen := map[string]struct{}{}
	for _, entry := range suite.Cases {
		switch {
		case strings.TrimSpace(entry.Name) == "":
			return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("case name is required"), coreerrors.CodeInvalidProfile)
		case strings.TrimSpace(entry.Profile) == "":
			return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("case profile is required for %s", entry.Name), coreerrors.CodeInvalidProfile)
		case strings.TrimSpace(entry.CandidateRecipeID) == "":
			return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("case candidate_recipe_id is required for %s", entry.Name), coreerrors.CodeInvalidProfile)
		}
		if _, ok := seen[entry.Name]; ok {
			return suiteFile{}, coreerrors.InvalidInput(fmt.Errorf("duplicate case name %s", entry.Name), coreerrors.CodeInvalidProfile)
		}
		seen[entry.Name] = struct{}{}
	}
	sort.Slice(suite.Cases, func(i, j int) bool {
		return suite.Cases[i].Name < suite.Cases[j].Name
	})
	return suite, nil
}

func writeJUnitReport(path string, result schemaregress.SuiteResult) error {
	encoded, err := xml.MarshalIndent(buildJUnit(result), "", "  ")
	if err != nil {
		return err
	}
	document := append([]byte(xml.Header), encoded...)
	document = append(document, '\n')
	return fsx.WriteFileAtomic(path, document, 0o600)
}

func buildJUnit(result schemaregress.SuiteResult) junitTestSuites {
	testCases := make([]junitTestCase, 0, len(result.Cases))
	failureCount := 0
	for _, caseResult := range result.Cases {
		testCase := junitTestCase{
			Name:      caseResult.Name,
			ClassName: "contextos.regress." + result.Suite,
			Time:      "0",
		}
		if caseResult.Status == StatusFail {
			failureCount++
			reasonText := strings.Join(caseResult.Reasons, "; ")
			if reasonText == "" {
				reasonText = "failed"
			}
			testCase.Failure = &junitFailure{
				Message: reasonText,
				Type:    "regress_failure",
				Body:    reasonText,
			}
		}
		testCases = append(testCases, testCase)
	}
	suite := junitTestSuite{
		Name:      "contextos.regress." + result.Suite,
		Tests:     len(testCases),
		Failures:  failureCount,
		Time:      "0",
		TestCases: testCases,
	}
	return junitTestSuites{
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Time:     "0",
		Suites:   []junitTestSuite{suite},
	}
}
