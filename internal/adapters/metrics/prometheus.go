package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptc_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptc_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptc_optimization_runs_active",
		Help: "Number of optimization runs currently executing",
	})

	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptc_trials_total",
		Help: "Total optimization trials executed",
	}, []string{"strategy"})

	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptc_evaluations_total",
		Help: "Total candidate evaluations",
	}, []string{"split", "outcome"})

	CollaboratorFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptc_collaborator_failures_total",
		Help: "Total generation and proposal collaborator failures",
	})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptc_generation_duration_seconds",
		Help:    "Generation collaborator call duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptc_run_duration_seconds",
		Help:    "End-to-end optimization run duration",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)
