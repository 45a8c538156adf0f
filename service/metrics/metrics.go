package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// The struct is passed explicitly to every component that records metrics;
// a nil *Metrics means metrics are disabled and callers skip recording.
type Metrics struct {
	// Upstream API Metrics
	fetchCallsTotal       *prometheus.CounterVec
	fetchCallDuration     *prometheus.HistogramVec
	fetchRetriesTotal     *prometheus.CounterVec
	fetchedPerCall        prometheus.Histogram
	transactionsSeenTotal prometheus.Counter

	// Ingestion Metrics
	transactionsWrittenTotal *prometheus.CounterVec
	writeFailuresTotal       *prometheus.CounterVec

	// Status Metrics
	health      prometheus.Gauge
	successRate *prometheus.GaugeVec

	// Poll Loop Metrics
	pollCycleDuration *prometheus.HistogramVec
	pollCyclesTotal   *prometheus.CounterVec

	// Query Metrics
	queryDuration *prometheus.HistogramVec
	queryResults  *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Upstream API Metrics
		fetchCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_fetch_calls_total",
				Help: "Total number of upstream HTTP attempts by response status or fault code",
			},
			[]string{"status"},
		),
		fetchCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_fetch_call_duration_seconds",
				Help:    "Duration of upstream HTTP attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),
		fetchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_fetch_retries_total",
				Help: "Total number of upstream retry attempts by fault code",
			},
			[]string{"code"},
		),
		fetchedPerCall: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "whale_transactions_per_call",
				Help:    "Number of transactions returned by successful upstream calls",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		transactionsSeenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "whale_transactions_fetched_total",
				Help: "Total number of transactions accepted from the upstream",
			},
		),

		// Ingestion Metrics
		transactionsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_transactions_written_total",
				Help: "Total number of transactions written to partitions",
			},
			[]string{"blockchain"},
		),
		writeFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_write_failures_total",
				Help: "Total number of failed batch writes",
			},
			[]string{"reason"},
		),

		// Status Metrics
		health: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "whale_health_percent",
				Help: "Percentage of successful calls in the rolling health window",
			},
		),
		successRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whale_success_rate_percent",
				Help: "Percentage of successful calls by counter scope",
			},
			[]string{"scope"},
		),

		// Poll Loop Metrics
		pollCycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_poll_cycle_duration_seconds",
				Help:    "Duration of one fetch-write-track cycle in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		pollCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whale_poll_cycles_total",
				Help: "Total number of poll cycles",
			},
			[]string{"status"},
		),

		// Query Metrics
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_query_duration_seconds",
				Help:    "Duration of read queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		queryResults: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whale_query_results",
				Help:    "Number of rows returned by read queries",
				Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"mode"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"blockchain"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"blockchain", "event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Upstream API metric helpers

// RecordFetchCall records one upstream HTTP attempt with duration.
// status is the HTTP status code, or "fault_<code>" for transport faults.
func (m *Metrics) RecordFetchCall(status string, duration float64) {
	m.fetchCallsTotal.WithLabelValues(status).Inc()
	m.fetchCallDuration.WithLabelValues(status).Observe(duration)
}

// RecordFetchRetry records a retry attempt.
func (m *Metrics) RecordFetchRetry(code string) {
	m.fetchRetriesTotal.WithLabelValues(code).Inc()
}

// RecordTransactionsFetched records the size of an accepted batch.
func (m *Metrics) RecordTransactionsFetched(count int) {
	m.fetchedPerCall.Observe(float64(count))
	m.transactionsSeenTotal.Add(float64(count))
}

// Ingestion metric helpers

// RecordTransactionsWritten records rows appended to a partition.
func (m *Metrics) RecordTransactionsWritten(blockchain string, count int) {
	m.transactionsWrittenTotal.WithLabelValues(blockchain).Add(float64(count))
}

// RecordWriteFailure records a rejected or aborted batch write.
func (m *Metrics) RecordWriteFailure(reason string) {
	m.writeFailuresTotal.WithLabelValues(reason).Inc()
}

// Status metric helpers

// SetHealth records the current rolling health percentage.
func (m *Metrics) SetHealth(health float64) {
	m.health.Set(health)
}

// SetSuccessRate records the success rate of a counter scope ("all_time" or "session").
func (m *Metrics) SetSuccessRate(scope string, rate float64) {
	m.successRate.WithLabelValues(scope).Set(rate)
}

// Poll loop metric helpers

// RecordPollCycle records one poll cycle with duration.
func (m *Metrics) RecordPollCycle(status string, duration float64) {
	m.pollCycleDuration.WithLabelValues(status).Observe(duration)
	m.pollCyclesTotal.WithLabelValues(status).Inc()
}

// Query metric helpers

// RecordQuery records a read query with its result size and duration.
func (m *Metrics) RecordQuery(mode string, results int, duration float64) {
	m.queryDuration.WithLabelValues(mode).Observe(duration)
	m.queryResults.WithLabelValues(mode).Observe(float64(results))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(blockchain string, delta float64) {
	m.sseActiveConnections.WithLabelValues(blockchain).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(blockchain, eventType string) {
	m.sseEventsSent.WithLabelValues(blockchain, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
