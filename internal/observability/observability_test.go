package observability_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/internal/observability"
	"github.com/njchilds90/derivtutor/verify"
)

func newTestMetrics(t *testing.T) (*observability.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return observability.NewMetrics(reg), reg
}

func TestObserveCheck(t *testing.T) {
	m, _ := newTestMetrics(t)
	res := equiv.Result{Verdict: equiv.Correct, Stats: equiv.Stats{Tested: 9, Matched: 9}}

	m.ObserveCheck("text", res, 2*time.Millisecond)
	m.ObserveCheck("text", res, 3*time.Millisecond)
	m.ObserveCheck("images", equiv.Result{Verdict: equiv.Incorrect}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("text", "correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("images", "incorrect")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("text", "incorrect")))
}

func TestObserveParseError(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveParseError(verify.SideG)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrorsTotal.WithLabelValues("g")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ParseErrorsTotal.WithLabelValues("f")))
}

func TestObserveTranscription(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveTranscription(nil)
	m.ObserveTranscription(errors.New("vision down"))
	m.ObserveTranscription(errors.New("vision down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptionsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TranscriptionsTotal.WithLabelValues("error")))
}

func TestMetricsRegistered(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RateLimitedTotal.Inc()
	m.ObserveCheck("text", equiv.Result{Verdict: equiv.Correct}, time.Millisecond)

	count, err := testutil.GatherAndCount(reg,
		"derivtutor_rate_limited_total",
		"derivtutor_check_duration_seconds",
		"derivtutor_probes_tested",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInitTracer_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := observability.InitTracer(true, &buf)
	require.NoError(t, err)

	_, span := observability.Tracer().Start(context.Background(), "verify")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"verify"`)
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := observability.InitTracer(false, nil)
	require.NoError(t, err)
	_, span := observability.Tracer().Start(context.Background(), "verify")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}
