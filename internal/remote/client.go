// Package remote talks to the leaf diagnosis service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/httpclient"
	"github.com/cropdx/leafscan/internal/logger"
)

const componentName = "remote"

// Service endpoints, relative to the configured base address.
const (
	AnalyzePath = "/api/analyze"
	HistoryPath = "/api/history"
	UploadsPath = "/uploads"

	// uploadField is the multipart field carrying the image.
	uploadField = "file"
)

const (
	// maxResponseBytes bounds JSON bodies read from the service.
	maxResponseBytes = 8 << 20
	// maxErrorPreview bounds how much of an error body is logged.
	maxErrorPreview = 512
)

// Client implements the analyze, history and clear operations of the service.
// It satisfies session.Analyzer and history.Source.
type Client struct {
	http *httpclient.Client
	log  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a service client on top of hc, which must have a base URL.
func NewClient(hc *httpclient.Client, opts ...Option) (*Client, error) {
	if hc == nil || hc.BaseURL() == "" {
		return nil, errors.Newf("service base URL is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			UserMessage("No service address configured. Set api.baseurl or LEAFSCAN_API_URL.").
			Build()
	}
	c := &Client{
		http: hc,
		log:  logger.Global().Module(componentName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root address.
func (c *Client) BaseURL() string {
	return c.http.BaseURL()
}

// Analyze uploads one image and returns the service's diagnosis.
// Every failure is a remote-analysis error with a user-displayable message.
func (c *Client) Analyze(ctx context.Context, name, contentType string, data []byte) (diagnosis.AnalysisResult, error) {
	start := time.Now()
	resp, err := c.http.PostMultipart(ctx, AnalyzePath, httpclient.FilePart{
		Field:       uploadField,
		Filename:    name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return diagnosis.AnalysisResult{}, c.transportError(err, errors.CategoryRemoteAnalysis, AnalyzePath,
			"Could not reach the analysis service.")
	}
	defer closeBody(resp)

	if err := c.checkStatus(resp, errors.CategoryRemoteAnalysis, AnalyzePath, "Analysis failed"); err != nil {
		return diagnosis.AnalysisResult{}, err
	}

	var result diagnosis.AnalysisResult
	if err := decodeJSON(resp.Body, &result); err != nil {
		return diagnosis.AnalysisResult{}, c.decodeError(err, errors.CategoryRemoteAnalysis, AnalyzePath,
			"The analysis service returned an unreadable response.")
	}

	c.log.Debug("Analysis received",
		logger.String("filename", result.Filename),
		logger.Duration("took", time.Since(start)))
	return result, nil
}

// ListHistory fetches every stored record. Failures are remote-fetch errors.
func (c *Client) ListHistory(ctx context.Context) ([]diagnosis.HistoryRecord, error) {
	resp, err := c.http.Get(ctx, HistoryPath)
	if err != nil {
		return nil, c.transportError(err, errors.CategoryRemoteFetch, HistoryPath,
			"Could not reach the history service.")
	}
	defer closeBody(resp)

	if err := c.checkStatus(resp, errors.CategoryRemoteFetch, HistoryPath, "Could not load history"); err != nil {
		return nil, err
	}

	var records []diagnosis.HistoryRecord
	if err := decodeJSON(resp.Body, &records); err != nil {
		return nil, c.decodeError(err, errors.CategoryRemoteFetch, HistoryPath,
			"The history service returned an unreadable response.")
	}
	if records == nil {
		records = []diagnosis.HistoryRecord{}
	}
	return records, nil
}

// ClearHistory deletes every stored record. Failures are remote-clear errors.
func (c *Client) ClearHistory(ctx context.Context) error {
	resp, err := c.http.Delete(ctx, HistoryPath)
	if err != nil {
		return c.transportError(err, errors.CategoryRemoteClear, HistoryPath,
			"Could not reach the history service.")
	}
	defer closeBody(resp)

	return c.checkStatus(resp, errors.CategoryRemoteClear, HistoryPath, "Could not clear history")
}

// UploadURL resolves the address of a stored image.
func (c *Client) UploadURL(filename string) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	return c.http.ResolveURL(UploadsPath, url.PathEscape(filename)), nil
}

func validateFilename(filename string) error {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.New(fmt.Errorf("invalid upload filename %q", filename)).
			Component(componentName).
			Category(errors.CategoryValidation).
			UserMessage("The record has no valid image filename.").
			Build()
	}
	return nil
}

// checkStatus maps a non-2xx response to an error of the given category,
// preferring the service's own detail message.
func (c *Client) checkStatus(resp *http.Response, category errors.ErrorCategory, endpoint, prefix string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	detail := serviceDetail(body)
	msg := prefix + ": " + http.StatusText(resp.StatusCode)
	if detail != "" {
		msg = prefix + ": " + detail
	}

	c.log.Warn("Service returned error status",
		logger.String("endpoint", endpoint),
		logger.Int("status_code", resp.StatusCode),
		logger.String("response_preview", preview(body)))

	method := ""
	if resp.Request != nil {
		method = resp.Request.Method
	}
	return errors.New(fmt.Errorf("%s %s: status %d", method, endpoint, resp.StatusCode)).
		Component(componentName).
		Category(category).
		UserMessage(msg).
		Context("endpoint", endpoint).
		Context("status_code", resp.StatusCode).
		Build()
}

func (c *Client) transportError(err error, category errors.ErrorCategory, endpoint, msg string) error {
	c.log.Warn("Service request failed",
		logger.String("endpoint", endpoint),
		logger.Error(err))
	return errors.New(err).
		Component(componentName).
		Category(category).
		UserMessage(msg).
		Context("endpoint", endpoint).
		Context("base_url", c.http.BaseURL()).
		Build()
}

func (c *Client) decodeError(err error, category errors.ErrorCategory, endpoint, msg string) error {
	return errors.New(fmt.Errorf("decode %s response: %w", endpoint, err)).
		Component(componentName).
		Category(category).
		UserMessage(msg).
		Context("endpoint", endpoint).
		Build()
}

// serviceDetail extracts a message from FastAPI-style error bodies:
// {"detail": "..."}, {"detail": [{"msg": "..."}]} or {"message": "..."}.
func serviceDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return strings.TrimSpace(payload.Message)
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(r, maxResponseBytes)).Decode(v)
}

func preview(body []byte) string {
	if len(body) > maxErrorPreview {
		return string(body[:maxErrorPreview]) + "..."
	}
	return string(body)
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorPreview))
	_ = resp.Body.Close()
}

// EndpointLabel names the service operation for a request, for metrics.
func EndpointLabel(method, path string) string {
	switch {
	case strings.HasSuffix(path, AnalyzePath):
		return "analyze"
	case strings.HasSuffix(path, HistoryPath) && method == http.MethodDelete:
		return "clear_history"
	case strings.HasSuffix(path, HistoryPath):
		return "list_history"
	case strings.Contains(path, UploadsPath+"/"):
		return "uploads"
	default:
		return "other"
	}
}
