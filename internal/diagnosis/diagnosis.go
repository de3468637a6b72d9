// Package diagnosis defines the records exchanged with the leaf diagnosis service.
package diagnosis

import (
	"math"
	"strings"
)

// Status labels shown for a result's health flag
const (
	StatusHealthy  = "Healthy"
	StatusAffected = "Affected"
)

// AnalysisResult is the response to one successful image submission.
// Treat values as immutable once received.
type AnalysisResult struct {
	ID              string    `json:"id,omitempty"`
	Filename        string    `json:"filename"`
	IsHealthy       bool      `json:"is_healthy"`
	DiseaseName     string    `json:"disease_name"`
	DiseaseReadable string    `json:"disease_readable,omitempty"`
	Confidence      float64   `json:"confidence"`
	Severity        *string   `json:"severity,omitempty"`
	Reasoning       string    `json:"reasoning"`
	Timestamp       Timestamp `json:"timestamp,omitzero"`
}

// ConfidencePercent returns confidence as a rounded whole percentage, clamped to [0,100].
func (r *AnalysisResult) ConfidencePercent() int {
	pct := math.Round(r.Confidence * 100)
	return int(min(max(pct, 0), 100))
}

// StatusLabel returns "Healthy" or "Affected".
func (r *AnalysisResult) StatusLabel() string {
	if r.IsHealthy {
		return StatusHealthy
	}
	return StatusAffected
}

// HasSeverity reports whether the service supplied a non-blank severity.
// Severity is independent of IsHealthy.
func (r *AnalysisResult) HasSeverity() bool {
	return r.Severity != nil && strings.TrimSpace(*r.Severity) != ""
}

// SeverityOr returns the severity or fallback when absent.
func (r *AnalysisResult) SeverityOr(fallback string) string {
	if !r.HasSeverity() {
		return fallback
	}
	return *r.Severity
}

// HistoryRecord is a past analysis persisted by the service.
type HistoryRecord struct {
	AnalysisResult
}

// NewSeverity returns a pointer to s, for building records in code and tests.
func NewSeverity(s string) *string {
	return &s
}

// AggregatedStats are derived from a history snapshot and never persisted.
// HealthyCount + AffectedCount == Total.
type AggregatedStats struct {
	PerLabelCounts map[string]int `json:"per_label_counts"`
	HealthyCount   int            `json:"healthy_count"`
	AffectedCount  int            `json:"affected_count"`
	Total          int            `json:"total"`
	DistinctLabels int            `json:"distinct_labels"`
}
