package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/httpclient"
	"github.com/cropdx/leafscan/internal/logger"
	"github.com/cropdx/leafscan/internal/testutil"
)

const testBaseURL = "http://leafscan.test"

var pngBytes = testutil.PNGBytes()

const analyzeResponse = `{
	"id": "0b7e",
	"filename": "0b7e.png",
	"disease_name": "Apple Scab",
	"disease_readable": "Apple - Apple Scab",
	"is_healthy": false,
	"confidence": 0.91,
	"reasoning": "**Severity:** 15%",
	"severity": "15%",
	"timestamp": 1718000000000,
	"raw_analysis": {"leaf_name": "Apple"}
}`

const historyResponse = `[
	{"id":"2","filename":"2.png","disease_name":"Healthy","disease_readable":"Apple (Healthy)","is_healthy":true,"confidence":0.8,"reasoning":"ok","timestamp":1718000005000},
	{"id":"1","filename":"1.png","disease_name":"Apple Scab","disease_readable":"Apple - Apple Scab","is_healthy":false,"confidence":0.9,"reasoning":"bad","timestamp":1718000000000}
]`

// setupMock returns a service client whose transport is an isolated httpmock transport.
func setupMock(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	hc, err := httpclient.New(&httpclient.Config{
		BaseURL:        testBaseURL,
		DefaultTimeout: 2 * time.Second,
		Transport:      mock,
	})
	require.NoError(t, err)
	t.Cleanup(hc.Close)

	c, err := NewClient(hc, WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError)))
	require.NoError(t, err)
	return c, mock
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	hc, err := httpclient.New(nil)
	require.NoError(t, err)

	_, err = NewClient(hc)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestAnalyzeSuccess(t *testing.T) {
	t.Parallel()

	c, mock := setupMock(t)
	mock.RegisterResponder(http.MethodPost, testBaseURL+AnalyzePath,
		func(req *http.Request) (*http.Response, error) {
			file, header, err := req.FormFile("file")
			if err != nil {
				return httpmock.NewStringResponse(http.StatusUnprocessableEntity, `{"detail":"missing file"}`), nil
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			if header.Filename != "leaf.png" || len(data) != len(pngBytes) {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"detail":"unexpected upload"}`), nil
			}
			if req.Header.Get(httpclient.RequestIDHeader) == "" {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"detail":"missing request id"}`), nil
			}
			resp := httpmock.NewStringResponse(http.StatusOK, analyzeResponse)
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})

	result, err := c.Analyze(t.Context(), "leaf.png", "image/png", pngBytes)
	require.NoError(t, err)

	assert.Equal(t, "0b7e.png", result.Filename)
	assert.Equal(t, "Apple - Apple Scab", result.DiseaseReadable)
	assert.False(t, result.IsHealthy)
	assert.InDelta(t, 0.91, result.Confidence, 1e-9)
	require.True(t, result.HasSeverity())
	assert.Equal(t, "15%", *result.Severity)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
		wantMsg   string
	}{
		{
			name:      "fastapi detail",
			responder: httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"detail":"File must be an image"}`),
			wantMsg:   "Analysis failed: File must be an image",
		},
		{
			name:      "validation list",
			responder: httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`),
			wantMsg:   "Analysis failed: field required",
		},
		{
			name:      "plain server error",
			responder: httpmock.NewStringResponder(http.StatusInternalServerError, "Internal Server Error"),
			wantMsg:   "Analysis failed: Internal Server Error",
		},
		{
			name:      "unreadable body",
			responder: httpmock.NewStringResponder(http.StatusOK, "<html>"),
			wantMsg:   "The analysis service returned an unreadable response.",
		},
		{
			name:      "transport failure",
			responder: httpmock.NewErrorResponder(fmt.Errorf("connection refused")),
			wantMsg:   "Could not reach the analysis service.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, mock := setupMock(t)
			mock.RegisterResponder(http.MethodPost, testBaseURL+AnalyzePath, tt.responder)

			_, err := c.Analyze(t.Context(), "leaf.png", "image/png", pngBytes)
			require.Error(t, err)
			assert.True(t, errors.IsRemoteAnalysis(err), "expected remote analysis error, got %v", err)
			assert.Equal(t, tt.wantMsg, errors.UserMessage(err))
		})
	}
}

func TestListHistory(t *testing.T) {
	t.Parallel()

	c, mock := setupMock(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath,
		httpmock.NewStringResponder(http.StatusOK, historyResponse))

	records, err := c.ListHistory(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].ID, "service order preserved")
	assert.True(t, records[0].IsHealthy)
	assert.Nil(t, records[0].Severity)
	assert.Equal(t, int64(1718000005000), records[0].Timestamp.EpochMillis())
}

func TestListHistoryEmptyAndErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty array", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath, httpmock.NewStringResponder(http.StatusOK, `[]`))
		records, err := c.ListHistory(t.Context())
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("null body", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath, httpmock.NewStringResponder(http.StatusOK, `null`))
		records, err := c.ListHistory(t.Context())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	for _, status := range []int{http.StatusNotFound, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			c, mock := setupMock(t)
			mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath, httpmock.NewStringResponder(status, ""))
			_, err := c.ListHistory(t.Context())
			require.Error(t, err)
			assert.True(t, errors.IsRemoteFetch(err))
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath, httpmock.NewStringResponder(http.StatusOK, `[{"id":`))
		_, err := c.ListHistory(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsRemoteFetch(err))
	})

	t.Run("transport", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodGet, testBaseURL+HistoryPath, httpmock.NewErrorResponder(context.DeadlineExceeded))
		_, err := c.ListHistory(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsRemoteFetch(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClearHistory(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodDelete, testBaseURL+HistoryPath,
			httpmock.NewStringResponder(http.StatusOK, `{"message":"History cleared"}`))
		require.NoError(t, c.ClearHistory(t.Context()))
		assert.Equal(t, 1, mock.GetCallCountInfo()["DELETE "+testBaseURL+HistoryPath])
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		c, mock := setupMock(t)
		mock.RegisterResponder(http.MethodDelete, testBaseURL+HistoryPath,
			httpmock.NewStringResponder(http.StatusInternalServerError, `{"message":"database locked"}`))
		err := c.ClearHistory(t.Context())
		require.Error(t, err)
		assert.True(t, errors.IsRemoteClear(err))
		assert.Equal(t, "Could not clear history: database locked", errors.UserMessage(err))
	})
}

func TestUploadURL(t *testing.T) {
	t.Parallel()

	c, _ := setupMock(t)

	got, err := c.UploadURL("0b7e.png")
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/uploads/0b7e.png", got)

	got, err = c.UploadURL("leaf photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/uploads/leaf%20photo.jpg", got)

	for _, bad := range []string{"", "..", "../etc/passwd", `a\b.png`} {
		_, err := c.UploadURL(bad)
		require.Error(t, err, "filename %q", bad)
		assert.True(t, errors.IsInvalidInput(err))
	}
}

func TestEndpointLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "analyze", EndpointLabel(http.MethodPost, "/api/analyze"))
	assert.Equal(t, "list_history", EndpointLabel(http.MethodGet, "/prefix/api/history"))
	assert.Equal(t, "clear_history", EndpointLabel(http.MethodDelete, "/api/history"))
	assert.Equal(t, "uploads", EndpointLabel(http.MethodGet, "/uploads/x.png"))
	assert.Equal(t, "other", EndpointLabel(http.MethodGet, "/"))
}

func TestImageFetcher(t *testing.T) {
	t.Parallel()

	c, mock := setupMock(t)
	url := testBaseURL + "/uploads/0b7e.png"

	release := make(chan struct{})
	mock.RegisterResponder(http.MethodGet, url, func(req *http.Request) (*http.Response, error) {
		<-release
		return httpmock.NewBytesResponse(http.StatusOK, pngBytes), nil
	})

	fetcher := NewImageFetcher(c, time.Minute, 100)

	var wg sync.WaitGroup
	results := make(chan Image, 5)
	for range 5 {
		wg.Go(func() {
			img, err := fetcher.Fetch(t.Context(), "0b7e.png")
			assert.NoError(t, err)
			results <- img
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for img := range results {
		assert.Equal(t, "image/png", img.ContentType)
		assert.Equal(t, pngBytes, img.Data)
	}
	assert.Equal(t, 1, mock.GetTotalCallCount(), "concurrent fetches share one download")
	assert.Equal(t, 1, fetcher.CachedCount())

	// Cached afterwards
	_, err := fetcher.Fetch(t.Context(), "0b7e.png")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetTotalCallCount())

	fetcher.Flush()
	assert.Zero(t, fetcher.CachedCount())
}

func TestImageFetcherErrors(t *testing.T) {
	t.Parallel()

	c, mock := setupMock(t)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/uploads/missing.png",
		httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Not Found"}`))
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/uploads/broken.png",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	fetcher := NewImageFetcher(c, 0, 0)

	_, err := fetcher.Fetch(t.Context(), "missing.png")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = fetcher.Fetch(t.Context(), "broken.png")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageFetch))

	_, err = fetcher.Fetch(t.Context(), "../secret")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	assert.Zero(t, fetcher.CachedCount(), "failures are not cached")
}
