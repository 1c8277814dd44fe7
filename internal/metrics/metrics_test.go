package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"SubmissionsTotal", SubmissionsTotal},
		{"SubmissionRetries", SubmissionRetries},
		{"SubmissionLatency", SubmissionLatency},
		{"NonceReleases", NonceReleases},
		{"RunsTotal", RunsTotal},
		{"RecordsWritten", RecordsWritten},
		{"RecordWriteFailures", RecordWriteFailures},
		{"RPCRequestsTotal", RPCRequestsTotal},
		{"RPCRequestDuration", RPCRequestDuration},
		{"RPCRateLimitWaits", RPCRateLimitWaits},
		{"RPCBreakerState", RPCBreakerState},
		{"AlertsSent", AlertsSent},
		{"AlertsSuppressed", AlertsSuppressed},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestMetrics_CounterIncrementNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { SubmissionsTotal.WithLabelValues("test-net", "submitted").Inc() })
	assert.NotPanics(t, func() { SubmissionRetries.WithLabelValues("test-net").Inc() })
	assert.NotPanics(t, func() { NonceReleases.WithLabelValues("test-net").Inc() })
	assert.NotPanics(t, func() { RunsTotal.WithLabelValues("test-net", "completed").Inc() })
	assert.NotPanics(t, func() { RecordsWritten.WithLabelValues("test-net").Inc() })
	assert.NotPanics(t, func() { RecordWriteFailures.WithLabelValues("test-net").Inc() })
	assert.NotPanics(t, func() { RPCRequestsTotal.WithLabelValues("eth_chainId", "ok").Inc() })
	assert.NotPanics(t, func() { RPCRateLimitWaits.Inc() })
	assert.NotPanics(t, func() { AlertsSent.WithLabelValues("slack", "RUN_ABORTED").Inc() })
	assert.NotPanics(t, func() { AlertsSuppressed.WithLabelValues("slack", "RUN_ABORTED").Inc() })
}

func TestMetrics_HistogramObserveNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { SubmissionLatency.WithLabelValues("test-net").Observe(0.25) })
	assert.NotPanics(t, func() { RPCRequestDuration.WithLabelValues("eth_sendRawTransaction").Observe(0.05) })
}

func TestMetrics_GaugeSetNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { RPCBreakerState.Set(1.0) })
}

func TestMetrics_CounterValueReadable(t *testing.T) {
	t.Parallel()

	counter := SubmissionsTotal.WithLabelValues("value-read-net", "submitted")
	counter.Inc()
	counter.Inc()

	assert.Equal(t, 2.0, readCounterValue(t, counter))
}

func readCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	dtoMetric := &dto.Metric{}
	require.NoError(t, counter.Write(dtoMetric))
	return dtoMetric.GetCounter().GetValue()
}
