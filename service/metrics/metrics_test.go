package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetrics_RecordHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordFetchCall("200", 0.2)
	m.RecordFetchCall("fault_1", 0.1)
	m.RecordFetchRetry("1")
	m.RecordTransactionsFetched(3)
	m.RecordTransactionsWritten("bitcoin", 2)
	m.RecordWriteFailure("invalid_record")
	m.SetHealth(96.7)
	m.SetSuccessRate("session", 50)
	m.RecordPollCycle("success", 1.5)
	m.RecordQuery("text", 12, 0.01)

	families := gather(t, reg)

	calls := families["whale_fetch_calls_total"]
	require.NotNil(t, calls)
	assert.Len(t, calls.GetMetric(), 2)

	fetched := families["whale_transactions_fetched_total"]
	require.NotNil(t, fetched)
	assert.Equal(t, 3.0, fetched.GetMetric()[0].GetCounter().GetValue())

	health := families["whale_health_percent"]
	require.NotNil(t, health)
	assert.Equal(t, 96.7, health.GetMetric()[0].GetGauge().GetValue())

	rate := families["whale_success_rate_percent"]
	require.NotNil(t, rate)
	assert.Equal(t, "scope", rate.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "session", rate.GetMetric()[0].GetLabel()[0].GetValue())
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := HTTPMetricsMiddleware(m, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	families := gather(t, reg)
	total := families["http_requests_total"]
	require.NotNil(t, total)
	labels := map[string]string{}
	for _, l := range total.GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	assert.Equal(t, "4xx", labels["status"])
	assert.Equal(t, "/test", labels["handler"])
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(204))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "5xx", statusCodeToString(503))
	assert.Equal(t, "unknown", statusCodeToString(0))
}
