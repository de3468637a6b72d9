// Package aggregate derives dashboard and history views from a record
// snapshot. Every function is pure and safe for concurrent use.
package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cropdx/leafscan/internal/diagnosis"
)

// Split partitions records by health flag.
type Split struct {
	Healthy  int `json:"healthy"`
	Affected int `json:"affected"`
}

// Total returns Healthy + Affected.
func (s Split) Total() int {
	return s.Healthy + s.Affected
}

// SeriesPoint is one bar or slice of a chart.
type SeriesPoint struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CountsByLabel counts records per canonical label.
func CountsByLabel(records []diagnosis.HistoryRecord) map[string]int {
	counts := make(map[string]int)
	for i := range records {
		counts[LabelOf(records[i].AnalysisResult)]++
	}
	return counts
}

// HealthSplit counts healthy and affected records. Every record lands in
// exactly one bucket.
func HealthSplit(records []diagnosis.HistoryRecord) Split {
	var s Split
	for i := range records {
		if records[i].IsHealthy {
			s.Healthy++
		} else {
			s.Affected++
		}
	}
	return s
}

// FilterBySubstring keeps records whose label or filename contains term,
// ignoring case and separator differences. A blank term returns records
// unchanged. Input order is preserved.
func FilterBySubstring(records []diagnosis.HistoryRecord, term string) []diagnosis.HistoryRecord {
	if strings.TrimSpace(term) == "" {
		return records
	}

	canonTerm := CanonicalLabel(term)
	lower := cases.Lower(language.Und)
	rawTerm := lower.String(strings.TrimSpace(term))

	out := make([]diagnosis.HistoryRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		// A term of only separators canonicalizes to "" and can match filenames only.
		if (canonTerm != "" && strings.Contains(LabelOf(r.AnalysisResult), canonTerm)) ||
			strings.Contains(lower.String(r.Filename), rawTerm) {
			out = append(out, *r)
		}
	}
	return out
}

// Stats computes the full aggregate for a snapshot.
func Stats(records []diagnosis.HistoryRecord) diagnosis.AggregatedStats {
	counts := CountsByLabel(records)
	split := HealthSplit(records)
	return diagnosis.AggregatedStats{
		PerLabelCounts: counts,
		HealthyCount:   split.Healthy,
		AffectedCount:  split.Affected,
		Total:          len(records),
		DistinctLabels: len(counts),
	}
}

// LabelSeries orders label counts for a bar chart: highest count first,
// ties broken alphabetically.
func LabelSeries(counts map[string]int) []SeriesPoint {
	series := make([]SeriesPoint, 0, len(counts))
	for label, n := range counts {
		series = append(series, SeriesPoint{Label: label, Count: n})
	}
	slices.SortFunc(series, func(a, b SeriesPoint) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return series
}

// HealthSeries returns the pie chart series for a split.
func HealthSeries(s Split) []SeriesPoint {
	return []SeriesPoint{
		{Label: diagnosis.StatusHealthy, Count: s.Healthy},
		{Label: diagnosis.StatusAffected, Count: s.Affected},
	}
}

// Recent returns up to n records from the front of the snapshot, which the
// service orders newest first.
func Recent(records []diagnosis.HistoryRecord, n int) []diagnosis.HistoryRecord {
	if n <= 0 {
		return nil
	}
	if len(records) <= n {
		return slices.Clone(records)
	}
	return slices.Clone(records[:n])
}

// Percent returns part/total as a whole percentage, 0 when total is 0.
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (part*100 + total/2) / total
}
