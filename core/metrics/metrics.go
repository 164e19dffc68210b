// Package metrics records planner, invariant and regression outcomes on a
// private Prometheus registry. Commands flush the registry to a node-exporter
// textfile when one is configured.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	schemacontext "github.com/davidahmann/contextos/core/schema/v1/context"
	schemainvariant "github.com/davidahmann/contextos/core/schema/v1/invariant"
	schemaregress "github.com/davidahmann/contextos/core/schema/v1/regress"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contextos"

type Recorder struct {
	registry *prometheus.Registry

	plansTotal      *prometheus.CounterVec
	tokensUsed      *prometheus.HistogramVec
	droppedItems    *prometheus.CounterVec
	invariantChecks *prometheus.CounterVec
	violations      *prometheus.CounterVec
	regressCases    *prometheus.CounterVec
	commandErrors   *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		plansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "plans_total",
			Help:      "Context plans produced, by view.",
		}, []string{"view"}),
		tokensUsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "tokens_used",
			Help:      "Estimated tokens selected per plan, by view.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"view"}),
		droppedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "dropped_items_total",
			Help:      "Candidate items left out of plans, by drop reason.",
		}, []string{"reason"}),
		invariantChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invariants",
			Name:      "checks_total",
			Help:      "Invariant reports produced, by outcome.",
		}, []string{"outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invariants",
			Name:      "violations_total",
			Help:      "Invariant violations, by invariant id and severity.",
		}, []string{"invariant", "severity"}),
		regressCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "regress",
			Name:      "cases_total",
			Help:      "Regression cases evaluated, by status.",
		}, []string{"status"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "errors_total",
			Help:      "Command failures, by command and error category.",
		}, []string{"command", "category"}),
	}
	recorder.registry.MustRegister(
		recorder.plansTotal,
		recorder.tokensUsed,
		recorder.droppedItems,
		recorder.invariantChecks,
		recorder.violations,
		recorder.regressCases,
		recorder.commandErrors,
	)
	return recorder
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObservePlan(viewID string, plan schemacontext.ContextPlan) {
	r.plansTotal.WithLabelValues(viewID).Inc()
	r.tokensUsed.WithLabelValues(viewID).Observe(float64(plan.TokenReport.UsedTotal))
	for _, dropped := range plan.DroppedItems {
		r.droppedItems.WithLabelValues(string(dropped.DropReason)).Inc()
	}
}

func (r *Recorder) ObserveInvariants(report schemainvariant.Report) {
	outcome := "pass"
	if !report.Pass {
		outcome = "fail"
	}
	r.invariantChecks.WithLabelValues(outcome).Inc()
	for _, violation := range report.Violations {
		r.violations.WithLabelValues(violation.InvariantID, string(violation.Severity)).Inc()
	}
}

func (r *Recorder) ObserveSuite(result schemaregress.SuiteResult) {
	for _, regressionCase := range result.Cases {
		r.regressCases.WithLabelValues(regressionCase.Status).Inc()
	}
}

func (r *Recorder) ObserveCommandError(command, category string) {
	if strings.TrimSpace(category) == "" {
		category = "unclassified"
	}
	r.commandErrors.WithLabelValues(command, category).Inc()
}

// WriteTextfile writes the registry in the text exposition format. An empty
// path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
