// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PipelineOutcomes tracks terminal pipeline states per tenant.
	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_outcomes_total",
			Help: "Terminal pipeline outcomes",
		},
		[]string{"tenant_id", "status"},
	)

	// AdmissionRejections tracks requests denied by the rate limiter.
	// Rejections are expected traffic shaping, recorded here and never
	// logged as errors.
	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_rejections_total",
			Help: "Requests denied by per-identity rate limiting",
		},
		[]string{"tenant_id"},
	)

	// QuotaRejections tracks requests denied by the tenant usage ceiling.
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Requests denied by per-tenant quota",
		},
		[]string{"tenant_id"},
	)

	// QuotaRemaining tracks the remaining quota per tenant for the current
	// period.
	QuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quota_remaining",
			Help: "Remaining quota units for the current period",
		},
		[]string{"tenant_id"},
	)

	// GenerationDuration tracks generation backend latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Generation backend call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// GenerationFallbacks tracks turns answered with the fallback text.
	GenerationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Turns that degraded to the fallback response",
		},
		[]string{"tenant_id"},
	)

	// GenerationTokens tracks tokens processed by the generation backend.
	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tokens_total",
			Help: "Tokens processed by the generation backend",
		},
		[]string{"model", "direction"},
	)

	// RetrievalFailures tracks document index lookups that degraded to an
	// empty context.
	RetrievalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_failures_total",
			Help: "Document index lookups that returned no usable context",
		},
		[]string{"tenant_id"},
	)

	// CommitFailures tracks final commits that could not complete and
	// require reconciliation.
	CommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commit_failures_total",
			Help: "Pipeline commits that failed after the user message was recorded",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks messages appended to conversation logs.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Messages appended per tenant and role",
		},
		[]string{"tenant_id", "role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records metrics for one generation backend call.
func RecordGeneration(model, status string, duration float64, tokensIn, tokensOut int) {
	GenerationDuration.WithLabelValues(model, status).Observe(duration)
	GenerationTokens.WithLabelValues(model, "in").Add(float64(tokensIn))
	GenerationTokens.WithLabelValues(model, "out").Add(float64(tokensOut))
}
