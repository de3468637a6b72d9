package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropdx/leafscan/internal/diagnosis"
)

func TestServerStats(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	want := diagnosis.AggregatedStats{
		PerLabelCounts: map[string]int{"tomato early blight": 2},
		AffectedCount:  2,
		Total:          2,
		DistinctLabels: 1,
	}
	srv := NewServer(m, func() (diagnosis.AggregatedStats, bool) { return want, true })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var got diagnosis.AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
}

func TestServerStatsNotLoaded(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	for name, stats := range map[string]StatsFunc{
		"nil func":   nil,
		"not loaded": func() (diagnosis.AggregatedStats, bool) { return diagnosis.AggregatedStats{}, false },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			NewServer(m, stats).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", http.NoBody))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Client.RecordRequest("analyze", 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	NewServer(m, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `leafscan_remote_requests_total{endpoint="analyze",status="200"} 1`)
}

func TestServerServeAndShutdown(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	srv := NewServer(m, nil)

	ln, err := Listen(t.Context(), "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		req, reqErr := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
		if reqErr != nil {
			return false
		}
		resp, getErr := http.DefaultClient.Do(req)
		if getErr != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && json.Valid(body)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
