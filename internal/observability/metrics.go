package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cropdx/leafscan/internal/history"
	"github.com/cropdx/leafscan/internal/httpclient"
	"github.com/cropdx/leafscan/internal/observability/metrics"
	"github.com/cropdx/leafscan/internal/session"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Client   *metrics.ClientMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	clientMetrics, err := metrics.NewClientMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create client metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Client:   clientMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// EndpointLabeler maps a request method and path to a bounded endpoint label.
type EndpointLabeler func(method, path string) string

// InstrumentClient records every request made through hc. It installs
// before/after hooks, replacing any hooks already set.
func (m *Metrics) InstrumentClient(hc *httpclient.Client, label EndpointLabeler) {
	var started sync.Map // *http.Request -> time.Time

	hc.SetBeforeRequestHook(func(req *http.Request) {
		started.Store(req, time.Now())
	})
	hc.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		var elapsed time.Duration
		if v, ok := started.LoadAndDelete(req); ok {
			elapsed = time.Since(v.(time.Time))
		}
		status := 0
		if err == nil && resp != nil {
			status = resp.StatusCode
		}
		m.Client.RecordRequest(label(req.Method, req.URL.Path), status, elapsed)
	})
}

// ObserveSession counts state transitions of c.
func (m *Metrics) ObserveSession(c *session.Controller) {
	c.OnTransition(func(from, to session.State) {
		m.Client.RecordTransition(from.String(), to.String())
	})
}

// RecordOutcome counts a submit outcome.
func (m *Metrics) RecordOutcome(outcome session.Outcome) {
	m.Client.RecordSubmission(outcome.Status.String())
}

// ObserveHistory tracks refreshes and the snapshot size of repo.
func (m *Metrics) ObserveHistory(repo *history.Repository) {
	repo.OnRefresh(m.Client.RecordHistoryRefresh)
}
