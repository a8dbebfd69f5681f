package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Evaluation("benign")
	m.Evaluation("benign")
	m.Evaluation("anomalous")
	m.FormatViolation("proposal_list")
	m.TransportError("rate_limit")
	m.ContextTurns(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.evaluations.WithLabelValues("benign")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("anomalous")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.formatViolations.WithLabelValues("proposal_list")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportErrors.WithLabelValues("rate_limit")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.contextTurns))
}

func TestHistograms(t *testing.T) {
	m := New()
	m.Exchange(true, 300*time.Millisecond)
	m.Exchange(false, time.Second)
	m.Phase("verdict", 2*time.Second)

	assert.Equal(t, 2, testutil.CollectAndCount(m.exchangeSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.phaseSeconds))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Evaluation("benign")
	m.FormatViolation("boolean_only")
	m.TransportError("network")
	m.Exchange(true, time.Second)
	m.Phase("follow_up", time.Second)
	m.ContextTurns(3)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Evaluation("verdict_benign")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sitaware_evaluations_total{outcome="verdict_benign"} 1`)
}
