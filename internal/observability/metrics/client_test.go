package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *ClientMetrics {
	t.Helper()
	m, err := NewClientMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewClientMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewClientMetrics(registry)
	require.NoError(t, err)

	_, err = NewClientMetrics(registry)
	assert.Error(t, err, "registering the same collectors twice must fail")
}

func TestRecordRequest(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordRequest("analyze", 200, 150*time.Millisecond)
	m.RecordRequest("analyze", 200, 80*time.Millisecond)
	m.RecordRequest("analyze", 0, time.Second)
	m.RecordRequest("list_history", 502, 10*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requestsTotal.WithLabelValues("analyze", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("analyze", StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("list_history", "502")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestRecordTransitionAndSubmission(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordTransition("idle", "staged")
	m.RecordTransition("idle", "staged")
	m.RecordTransition("staged", "submitting")
	m.RecordSubmission("duplicate")

	assert.InDelta(t, 2, testutil.ToFloat64(m.sessionTransitions.WithLabelValues("idle", "staged")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionTransitions.WithLabelValues("staged", "submitting")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.submissions.WithLabelValues("duplicate")), 0)
}

func TestRecordHistoryRefresh(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordHistoryRefresh(7, nil)
	m.RecordHistoryRefresh(3, errors.New("boom"))

	assert.InDelta(t, 7, testutil.ToFloat64(m.historyRecords), 0, "failed refresh keeps previous size")
	assert.InDelta(t, 1, testutil.ToFloat64(m.historyRefresh.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.historyRefresh.WithLabelValues(StatusError)), 0)
	assert.Positive(t, testutil.ToFloat64(m.historyRefreshed))

	expected := `
# HELP leafscan_history_records Number of records in the current history snapshot
# TYPE leafscan_history_records gauge
leafscan_history_records 7
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "leafscan_history_records"))
}
