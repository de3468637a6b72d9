package diagnosis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeServiceResponse(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "3f1c",
		"filename": "3f1c.jpg",
		"disease_name": "Apple___Apple_scab",
		"disease_readable": "Apple - Apple Scab",
		"is_healthy": false,
		"confidence": 0.87,
		"reasoning": "**Severity:** 15%\n\nDark lesions.",
		"severity": "15%",
		"timestamp": 1718000000123.5,
		"raw_analysis": {"status": "Affected"}
	}`

	var r AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(payload), &r))

	assert.Equal(t, "3f1c.jpg", r.Filename)
	assert.Equal(t, "Apple - Apple Scab", r.DiseaseReadable)
	assert.Equal(t, 87, r.ConfidencePercent())
	assert.Equal(t, StatusAffected, r.StatusLabel())
	assert.True(t, r.HasSeverity())
	assert.Equal(t, "15%", r.SeverityOr("n/a"))
	assert.Equal(t, int64(1718000000123), r.Timestamp.EpochMillis())
}

func TestDecodeHistoryTolerantOfMissingOptionals(t *testing.T) {
	t.Parallel()

	payload := `[{"id":"a","filename":"a.png","disease_name":"Healthy","is_healthy":true,"confidence":1,"reasoning":"ok","timestamp":1700000000000}]`

	var records []HistoryRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &records))
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "a", rec.ID)
	assert.Empty(t, rec.DiseaseReadable)
	assert.Nil(t, rec.Severity)
	assert.False(t, rec.HasSeverity())
	assert.Equal(t, "n/a", rec.SeverityOr("n/a"))
	assert.Equal(t, StatusHealthy, rec.StatusLabel())
	assert.Equal(t, 100, rec.ConfidencePercent())
	assert.True(t, rec.Timestamp.Equal(time.UnixMilli(1700000000000)))
}

func TestSeverityIndependentOfHealth(t *testing.T) {
	t.Parallel()

	r := AnalysisResult{IsHealthy: true, Severity: NewSeverity("5%")}
	assert.True(t, r.HasSeverity())
	assert.Equal(t, StatusHealthy, r.StatusLabel())

	blank := AnalysisResult{Severity: NewSeverity("  ")}
	assert.False(t, blank.HasSeverity())
}

func TestConfidencePercentClamped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		confidence float64
		want       int
	}{
		{0, 0},
		{0.004, 0},
		{0.555, 56},
		{1, 100},
		{1.7, 100},
		{-0.2, 0},
	}
	for _, tt := range tests {
		r := AnalysisResult{Confidence: tt.confidence}
		assert.Equal(t, tt.want, r.ConfidencePercent(), "confidence %v", tt.confidence)
	}
}

func TestTimestampJSON(t *testing.T) {
	t.Parallel()

	t.Run("rfc3339 string", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`"2024-06-10T08:00:00Z"`), &ts))
		assert.Equal(t, time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC), ts.Time)
	})

	t.Run("null and empty", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
		assert.True(t, ts.IsZero())
		require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
		assert.True(t, ts.IsZero())
	})

	t.Run("invalid", func(t *testing.T) {
		var ts Timestamp
		require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
		require.Error(t, json.Unmarshal([]byte(`true`), &ts))
	})

	t.Run("encodes epoch millis", func(t *testing.T) {
		out, err := json.Marshal(NewTimestamp(time.UnixMilli(1718000000123)))
		require.NoError(t, err)
		assert.Equal(t, "1718000000123", string(out))

		out, err = json.Marshal(Timestamp{})
		require.NoError(t, err)
		assert.Equal(t, "null", string(out))
	})

	t.Run("zero timestamp omitted", func(t *testing.T) {
		out, err := json.Marshal(AnalysisResult{Filename: "x.png"})
		require.NoError(t, err)
		assert.NotContains(t, string(out), "timestamp")
		assert.NotContains(t, string(out), "severity")
	})
}
