// Package report renders diagnoses, history and dashboard statistics as
// terminal text.
package report

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

var (
	headingMarker  = regexp.MustCompile(`#+`)
	emphasisMarker = regexp.MustCompile(`\*\*|__`)
	listMarker     = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+`)
)

// StripMarkdown removes markdown heading and emphasis markers, and any HTML
// the service may embed, leaving readable plain text. Line structure is kept;
// blank lines are collapsed.
func StripMarkdown(s string) string {
	var out []string
	blank := false
	for line := range strings.Lines(s) {
		line = strings.TrimRight(line, "\r\n")
		if strings.ContainsAny(line, "<&") {
			line = html2text.HTML2Text(line)
		}
		bullet := listMarker.MatchString(line)
		line = listMarker.ReplaceAllString(line, "")
		line = headingMarker.ReplaceAllString(line, "")
		line = emphasisMarker.ReplaceAllString(line, "")
		line = strings.Join(strings.Fields(line), " ")

		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		if bullet {
			line = "- " + line
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Summary flattens text to a single line of at most width runes, ending
// with an ellipsis when truncated.
func Summary(s string, width int) string {
	flat := strings.Join(strings.Fields(StripMarkdown(s)), " ")
	if width <= 0 || utf8.RuneCountInString(flat) <= width {
		return flat
	}
	if width == 1 {
		return "…"
	}
	runes := []rune(flat)
	return strings.TrimRight(string(runes[:width-1]), " ") + "…"
}
