package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cropdx/leafscan/internal/aggregate"
	"github.com/cropdx/leafscan/internal/diagnosis"
)

const (
	summaryWidth    = 60
	barWidth        = 30
	recentCount     = 5
	timeLayout      = "2006-01-02 15:04"
	missingValue    = "-"
	indentReasoning = "  "
)

// Printer writes reports to w using a palette.
type Printer struct {
	w       io.Writer
	palette Palette
	loc     *time.Location
}

// NewPrinter creates a Printer. Timestamps are shown in local time.
func NewPrinter(w io.Writer, p Palette) *Printer {
	return &Printer{w: w, palette: p, loc: time.Local}
}

// WithLocation returns a copy of the printer that shows timestamps in loc.
func (p *Printer) WithLocation(loc *time.Location) *Printer {
	cp := *p
	cp.loc = loc
	return &cp
}

// Diagnosis prints a full analysis result.
func (p *Printer) Diagnosis(r diagnosis.AnalysisResult) error {
	advice := "no treatment needed"
	if !r.IsHealthy {
		advice = "treatment recommended"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.palette.paint(p.palette.Accent, aggregate.DisplayLabel(r)))
	fmt.Fprintf(&b, "  Status:      %s (%s)\n", p.palette.status(r.IsHealthy, r.StatusLabel()), advice)
	fmt.Fprintf(&b, "  Confidence:  %d%%\n", r.ConfidencePercent())
	if r.HasSeverity() {
		fmt.Fprintf(&b, "  Severity:    %s\n", *r.Severity)
	}
	if r.Filename != "" {
		fmt.Fprintf(&b, "  Stored as:   %s\n", r.Filename)
	}
	if !r.Timestamp.IsZero() {
		fmt.Fprintf(&b, "  Analyzed at: %s\n", r.Timestamp.In(p.loc).Format(timeLayout))
	}
	if text := StripMarkdown(r.Reasoning); text != "" {
		b.WriteString("\nReasoning:\n")
		for line := range strings.Lines(text) {
			line = strings.TrimRight(line, "\n")
			if line == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString(indentReasoning + line + "\n")
		}
	}

	_, err := io.WriteString(p.w, b.String())
	return err
}

// History prints one row per record. Severity is only shown for affected
// records, and the reasoning is flattened to a one-line summary.
func (p *Printer) History(records []diagnosis.HistoryRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(p.w, "No history found.")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tDIAGNOSIS\tSTATUS\tCONF\tSEVERITY\tSUMMARY")
	for i := range records {
		r := &records[i].AnalysisResult
		severity := missingValue
		if !r.IsHealthy {
			severity = r.SeverityOr(missingValue)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			orMissing(r.ID),
			p.when(r.Timestamp),
			aggregate.DisplayLabel(*r),
			r.StatusLabel(),
			r.ConfidencePercent(),
			severity,
			orMissing(Summary(r.Reasoning, summaryWidth)),
		)
	}
	return tw.Flush()
}

// Dashboard prints totals, the health split, per-label bars and the most
// recent records.
func (p *Printer) Dashboard(records []diagnosis.HistoryRecord) error {
	stats := aggregate.Stats(records)
	split := aggregate.HealthSplit(records)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.palette.paint(p.palette.Accent, "Dashboard"))
	fmt.Fprintf(&b, "  Total scans:     %d\n", stats.Total)
	fmt.Fprintf(&b, "  Healthy:         %s\n", p.palette.status(true,
		fmt.Sprintf("%d (%d%%)", split.Healthy, aggregate.Percent(split.Healthy, split.Total()))))
	fmt.Fprintf(&b, "  Affected:        %s\n", p.palette.status(false,
		fmt.Sprintf("%d (%d%%)", split.Affected, aggregate.Percent(split.Affected, split.Total()))))
	fmt.Fprintf(&b, "  Disease types:   %d\n", stats.DistinctLabels)
	if _, err := io.WriteString(p.w, b.String()); err != nil {
		return err
	}

	series := aggregate.LabelSeries(stats.PerLabelCounts)
	if len(series) > 0 {
		fmt.Fprintf(p.w, "\n%s\n", p.palette.paint(p.palette.Accent, "By diagnosis"))
		peak := series[0].Count
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for _, point := range series {
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", aggregate.TitleLabel(point.Label), point.Count, bar(point.Count, peak))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	recent := aggregate.Recent(records, recentCount)
	if len(recent) > 0 {
		fmt.Fprintf(p.w, "\n%s\n", p.palette.paint(p.palette.Accent, "Recent"))
		tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
		for i := range recent {
			r := &recent[i].AnalysisResult
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d%%\n",
				p.when(r.Timestamp), aggregate.DisplayLabel(*r), r.StatusLabel(), r.ConfidencePercent())
		}
		return tw.Flush()
	}
	return nil
}

// StatsLine prints a one-line summary of stats prefixed by the current time.
func (p *Printer) StatsLine(at time.Time, stats diagnosis.AggregatedStats) error {
	_, err := fmt.Fprintf(p.w, "%s  total=%d healthy=%d affected=%d types=%d\n",
		p.palette.paint(p.palette.Dim, at.In(p.loc).Format(time.TimeOnly)),
		stats.Total, stats.HealthyCount, stats.AffectedCount, stats.DistinctLabels)
	return err
}

func (p *Printer) when(ts diagnosis.Timestamp) string {
	if ts.IsZero() {
		return missingValue
	}
	return ts.In(p.loc).Format(timeLayout)
}

func bar(n, peak int) string {
	if peak <= 0 || n <= 0 {
		return ""
	}
	width := max(n*barWidth/peak, 1)
	return strings.Repeat("█", width)
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return missingValue
	}
	return s
}
