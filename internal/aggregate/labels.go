package aggregate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cropdx/leafscan/internal/diagnosis"
)

// DisplayLabel returns the human label for a result: the readable label when
// present, otherwise the raw machine label with separators turned into spaces.
func DisplayLabel(r diagnosis.AnalysisResult) string {
	if readable := collapseSpaces(r.DiseaseReadable); readable != "" {
		return readable
	}
	return collapseSpaces(replaceSeparators(r.DiseaseName))
}

// CanonicalLabel is the single normalization used for grouping, filtering and
// lookup: underscores become spaces, runs of whitespace collapse to one space,
// and the result is lowercased. Other punctuation is kept.
//
//	"Apple___Apple_scab" -> "apple apple scab"
//	"  Apple  Scab "     -> "apple scab"
func CanonicalLabel(s string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Lower(language.Und).String(collapseSpaces(replaceSeparators(s)))
}

// LabelOf returns the canonical label of a record's display label.
func LabelOf(r diagnosis.AnalysisResult) string {
	return CanonicalLabel(DisplayLabel(r))
}

// TitleLabel renders a canonical label for charts and tables.
func TitleLabel(canonical string) string {
	return cases.Title(language.Und).String(canonical)
}

func replaceSeparators(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
