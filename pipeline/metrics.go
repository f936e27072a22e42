package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. Labels stay
// low-cardinality: outcomes, stages, and branch names only, never
// document or correlation IDs.
type Metrics struct {
	Executions        *prometheus.CounterVec
	ValidationReports *prometheus.CounterVec
	BranchRetries     *prometheus.CounterVec
	DeadLetters       prometheus.Counter
	StageDuration     *prometheus.HistogramVec
}

// NewMetrics registers the engine instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "semgraph_executions_total",
			Help: "Completed executions by terminal outcome.",
		}, []string{"outcome"}),
		ValidationReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "semgraph_validation_reports_total",
			Help: "Validation reports by status.",
		}, []string{"status"}),
		BranchRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "semgraph_branch_attempts_total",
			Help: "Commit branch attempts by branch name.",
		}, []string{"branch"}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Name: "semgraph_dead_letters_total",
			Help: "Dead-letter records emitted.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "semgraph_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
}
