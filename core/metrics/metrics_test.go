package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePlanAndInvariants(t *testing.T) {
	recorder := NewRecorder()
	plan := schemacontext.ContextPlan{
		TokenReport: schemacontext.TokenReport{BudgetTotal: 1000, UsedTotal: 740},
		DroppedItems: []schemacontext.DroppedItem{
			{ID: "s9", DropReason: schemacontext.DropBudgetExceeded},
			{ID: "s10", DropReason: schemacontext.DropBudgetExceeded},
			{ID: "m1", DropReason: schemacontext.DropDeniedByPolicy},
		},
	}
	recorder.ObservePlan("chat", plan)
	recorder.ObservePlan("chat", plan)

	if got := testutil.ToFloat64(recorder.plansTotal.WithLabelValues("chat")); got != 2 {
		t.Fatalf("expected two plans, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.droppedItems.WithLabelValues("budget_exceeded")); got != 4 {
		t.Fatalf("expected four budget drops, got %v", got)
	}
	if got := testutil.CollectAndCount(recorder.tokensUsed); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}

	recorder.ObserveInvariants(schemainvariant.Report{Pass: true})
	recorder.ObserveInvariants(schemainvariant.Report{
		Pass: false,
		Violations: []schemainvariant.Violation{
			{InvariantID: "token-budget", Severity: schemainvariant.SeverityFatal},
		},
	})
	if got := testutil.ToFloat64(recorder.invariantChecks.WithLabelValues("fail")); got != 1 {
		t.Fatalf("expected one failing check, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.violations.WithLabelValues("token-budget", "fatal")); got != 1 {
		t.Fatalf("expected one token-budget violation, got %v", got)
	}
}

func TestObserveSuiteAndErrors(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveSuite(schemaregress.SuiteResult{Cases: []schemaregress.CaseResult{
		{Name: "a", Status: "pass"},
		{Name: "b", Status: "fail"},
		{Name: "c", Status: "fail"},
	}})
	if got := testutil.ToFloat64(recorder.regressCases.WithLabelValues("fail")); got != 2 {
		t.Fatalf("expected two failed cases, got %v", got)
	}
	recorder.ObserveCommandError("plan", "")
	if got := testutil.ToFloat64(recorder.commandErrors.WithLabelValues("plan", "unclassified")); got != 1 {
		t.Fatalf("expected unclassified error, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	recorder := NewRecorder()
	if err := recorder.WriteTextfile(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	recorder.ObservePlan("debug", schemacontext.ContextPlan{})
	path := filepath.Join(t.TempDir(), "contextos.prom")
	if err := recorder.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(content), `contextos_planner_plans_total{view="debug"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", content)
	}
}
