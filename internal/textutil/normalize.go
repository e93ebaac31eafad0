package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// CollapseSpace trims s and replaces every run of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName cleans a company or person name. Whitespace is collapsed and
// names typed entirely in lower case are title-cased; any other casing is
// left as entered so "eBay" or "McKinsey" survive.
func NormalizeName(name string) string {
	name = CollapseSpace(norm.NFC.String(name))
	if name == "" {
		return ""
	}
	hasUpper := false
	for _, r := range name {
		if unicode.IsUpper(r) {
			hasUpper = true
			break
		}
	}
	if hasUpper {
		return name
	}
	return cases.Title(language.Und).String(name)
}

// Fold returns the comparison key for free text: NFC composed, case folded,
// whitespace collapsed.
func Fold(s string) string {
	return CollapseSpace(cases.Fold().String(norm.NFC.String(s)))
}

// ContainsFold reports whether needle occurs in haystack after both are folded.
// An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	foldedNeedle := Fold(needle)
	if foldedNeedle == "" {
		return false
	}
	return strings.Contains(Fold(haystack), foldedNeedle)
}
