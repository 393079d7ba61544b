// Package observability holds the Prometheus metrics and OpenTelemetry
// tracer setup for the HTTP server.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/verify"
)

const metricsNamespace = "derivtutor"

// Metrics are the server's Prometheus collectors.
type Metrics struct {
	// ChecksTotal counts completed checks.
	// Labels: source (text, images), verdict (correct, incorrect)
	ChecksTotal *prometheus.CounterVec

	// ParseErrorsTotal counts formulas the builder rejected.
	// Labels: side (f, g)
	ParseErrorsTotal *prometheus.CounterVec

	// CheckDurationSeconds measures decode, build, differentiate and compare.
	CheckDurationSeconds prometheus.Histogram

	// ProbesTested records how many probe points produced two finite values.
	ProbesTested prometheus.Histogram

	// TranscriptionsTotal counts vision calls.
	// Labels: status (success, error)
	TranscriptionsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewMetrics registers the collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checks_total",
			Help:      "Completed derivative checks by input source and verdict",
		}, []string{"source", "verdict"}),
		ParseErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_errors_total",
			Help:      "Formulas rejected by the expression builder, by side",
		}, []string{"side"}),
		CheckDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "check_duration_seconds",
			Help:      "Time spent verifying one pair of expressions",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ProbesTested: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "probes_tested",
			Help:      "Probe points with finite values on both sides",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}),
		TranscriptionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transcriptions_total",
			Help:      "Vision transcription calls by status",
		}, []string{"status"}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
}

// ObserveCheck records a finished check.
func (m *Metrics) ObserveCheck(source string, res equiv.Result, elapsed time.Duration) {
	m.ChecksTotal.WithLabelValues(source, string(res.Verdict)).Inc()
	m.CheckDurationSeconds.Observe(elapsed.Seconds())
	m.ProbesTested.Observe(float64(res.Stats.Tested))
}

// ObserveParseError records a rejected formula.
func (m *Metrics) ObserveParseError(side verify.Side) {
	m.ParseErrorsTotal.WithLabelValues(string(side)).Inc()
}

// ObserveTranscription records one vision call pair.
func (m *Metrics) ObserveTranscription(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TranscriptionsTotal.WithLabelValues(status).Inc()
}
