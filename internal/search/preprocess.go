package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s in NFC, case-folded and with surrounding space removed, the
// canonical form used for tokens and stored specialties.
func Fold(s string) string {
	// a Caser keeps state, so one per call
	return strings.TrimSpace(cases.Fold().String(norm.NFC.String(s)))
}

// FoldTerms folds every term, collapses inner whitespace and drops empty or
// repeated entries while keeping first-seen order.
func FoldTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		f := strings.Join(strings.Fields(Fold(t)), " ")
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
