// Package metrics provides Prometheus metrics for the leafscan client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics contains Prometheus metrics for remote calls, the analysis
// session and the history snapshot.
type ClientMetrics struct {
	registry *prometheus.Registry

	// Remote service calls
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Analysis session
	sessionTransitions *prometheus.CounterVec
	submissions        *prometheus.CounterVec

	// History snapshot
	historyRecords   prometheus.Gauge
	historyRefresh   *prometheus.CounterVec
	historyRefreshed prometheus.Gauge
}

// NewClientMetrics creates and registers new client metrics
func NewClientMetrics(registry *prometheus.Registry) (*ClientMetrics, error) {
	m := &ClientMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *ClientMetrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_remote_requests_total",
			Help: "Total number of requests sent to the diagnosis service",
		},
		[]string{"endpoint", "status"}, // endpoint: analyze, list_history, clear_history, uploads; status: 200, 404, error
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafscan_remote_request_duration_seconds",
			Help:    "Time taken for requests to the diagnosis service",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"endpoint"},
	)

	m.sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_session_transitions_total",
			Help: "Total number of analysis session state transitions",
		},
		[]string{"from", "to"},
	)

	m.submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_session_submissions_total",
			Help: "Total number of submit attempts by outcome",
		},
		[]string{"outcome"}, // outcome: applied, failed, duplicate, stale
	)

	m.historyRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leafscan_history_records",
			Help: "Number of records in the current history snapshot",
		},
	)

	m.historyRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafscan_history_refresh_total",
			Help: "Total number of history refreshes",
		},
		[]string{"status"},
	)

	m.historyRefreshed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leafscan_history_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful history refresh",
		},
	)

	return nil
}

func (m *ClientMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.sessionTransitions,
		m.submissions,
		m.historyRecords,
		m.historyRefresh,
		m.historyRefreshed,
	}
}

// Describe implements the prometheus.Collector interface
func (m *ClientMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *ClientMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordRequest records a completed remote call. A zero statusCode means
// no response was received.
func (m *ClientMetrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	status := StatusError
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordTransition records a session state change.
func (m *ClientMetrics) RecordTransition(from, to string) {
	m.sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordSubmission records the outcome of a submit call.
func (m *ClientMetrics) RecordSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

// RecordHistoryRefresh records a refresh attempt. records is only applied
// to the snapshot gauge when err is nil.
func (m *ClientMetrics) RecordHistoryRefresh(records int, err error) {
	if err != nil {
		m.historyRefresh.WithLabelValues(StatusError).Inc()
		return
	}
	m.historyRefresh.WithLabelValues(StatusSuccess).Inc()
	m.historyRecords.Set(float64(records))
	m.historyRefreshed.SetToCurrentTime()
}
