// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the enhancement service.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "enhancement"

// Metrics holds all enhancement Prometheus metrics.
type Metrics struct {
	// Queue metrics
	JobsQueued    prometheus.Gauge
	JobsDelayed   prometheus.Gauge
	ActiveWorkers prometheus.Gauge
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   prometheus.Histogram

	// Scoring call metrics
	ScoringAttempts *prometheus.CounterVec
	ScoringDuration prometheus.Histogram
	ScoringCostUSD  prometheus.Counter

	// Admission metrics
	SubmissionsRejected prometheus.Counter
}

// Provider wraps the tracer and metrics.
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics.
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}

	m.JobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enhancement_jobs_queued",
		Help: "Current jobs waiting for a worker",
	})

	m.JobsDelayed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enhancement_jobs_delayed",
		Help: "Current jobs waiting for their delay to elapse",
	})

	m.ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enhancement_active_workers",
		Help: "Workers currently processing a job",
	})

	m.JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhancement_jobs_completed_total",
		Help: "Total completed jobs, by whether the external refinement succeeded",
	}, []string{"enhanced"})

	m.JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhancement_jobs_failed_total",
		Help: "Total failed jobs, by failure reason",
	}, []string{"reason"})

	m.JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enhancement_job_duration_seconds",
		Help:    "End-to-end time to process one enhancement job",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	m.ScoringAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enhancement_scoring_attempts_total",
		Help: "Total external scoring attempts, by outcome",
	}, []string{"outcome"})

	m.ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enhancement_scoring_attempt_duration_seconds",
		Help:    "Duration of a single external scoring attempt",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	m.ScoringCostUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enhancement_scoring_cost_usd_total",
		Help: "Estimated cumulative spend on the external scoring service",
	})

	m.SubmissionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enhancement_submissions_rejected_total",
		Help: "Enqueue requests rejected by the submission rate limiter",
	})

	return m
}

// RecordJobCompleted records a completed job and its duration.
func (p *Provider) RecordJobCompleted(enhanced bool, duration time.Duration) {
	label := "false"
	if enhanced {
		label = "true"
	}
	p.Metrics.JobsCompleted.WithLabelValues(label).Inc()
	p.Metrics.JobDuration.Observe(duration.Seconds())
}

// RecordJobFailed records a failed job with its reason.
func (p *Provider) RecordJobFailed(reason string, duration time.Duration) {
	p.Metrics.JobsFailed.WithLabelValues(reason).Inc()
	p.Metrics.JobDuration.Observe(duration.Seconds())
}

// RecordScoringAttempt records one external call attempt.
func (p *Provider) RecordScoringAttempt(outcome string, duration time.Duration, costUSD float64) {
	p.Metrics.ScoringAttempts.WithLabelValues(outcome).Inc()
	p.Metrics.ScoringDuration.Observe(duration.Seconds())
	if costUSD > 0 {
		p.Metrics.ScoringCostUSD.Add(costUSD)
	}
}

// RecordSubmissionRejected records an admission rejection at enqueue time.
func (p *Provider) RecordSubmissionRejected() {
	p.Metrics.SubmissionsRejected.Inc()
}

// SetQueueDepth sets the queued and delayed job gauges.
func (p *Provider) SetQueueDepth(queued, delayed int) {
	p.Metrics.JobsQueued.Set(float64(queued))
	p.Metrics.JobsDelayed.Set(float64(delayed))
}

// SetActiveWorkers sets the active worker gauge.
func (p *Provider) SetActiveWorkers(count int) {
	p.Metrics.ActiveWorkers.Set(float64(count))
}

// StartSpan starts a new trace span. The caller must end it.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
