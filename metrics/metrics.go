// Package metrics defines the prometheus instrumentation shared by the
// pipeline and the completion client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run results recorded on RunsTotal.
const (
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Completion outcomes recorded on CompletionRequests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Set bundles the collectors for one process. All observation methods
// are nil-safe so instrumentation stays optional.
type Set struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	StageErrors        *prometheus.CounterVec
	CompletionRequests *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
}

// New creates a Set backed by its own registry.
func New() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbforge",
			Name:      "runs_total",
			Help:      "Pipeline runs by result.",
		}, []string{"result"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kbforge",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbforge",
			Name:      "stage_errors_total",
			Help:      "Stage executions that returned an error.",
		}, []string{"stage"}),
		CompletionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbforge",
			Name:      "completion_requests_total",
			Help:      "Completion requests by purpose, provider and outcome.",
		}, []string{"purpose", "provider", "outcome"}),
		CompletionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kbforge",
			Name:      "completion_duration_seconds",
			Help:      "Completion request latency including retries.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"purpose", "provider"}),
	}
}

// Handler serves the set over HTTP in the prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished pipeline run.
func (s *Set) ObserveRun(result string) {
	if s == nil {
		return
	}
	s.RunsTotal.WithLabelValues(result).Inc()
}

// ObserveStage records one stage execution.
func (s *Set) ObserveStage(stage string, d time.Duration, err error) {
	if s == nil {
		return
	}
	s.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		s.StageErrors.WithLabelValues(stage).Inc()
	}
}

// ObserveCompletion records one completion request.
func (s *Set) ObserveCompletion(purpose, provider, outcome string, d time.Duration) {
	if s == nil {
		return
	}
	s.CompletionRequests.WithLabelValues(purpose, provider, outcome).Inc()
	s.CompletionDuration.WithLabelValues(purpose, provider).Observe(d.Seconds())
}
