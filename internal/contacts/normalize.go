// Package contacts holds the pure contact logic shared by import and query:
// text normalization, the dedupe key, and relevance ranking.
package contacts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// KeySeparator joins the name and company halves of a dedupe key.
const KeySeparator = "|"

// Normalize trims s, lowercases it, and collapses every run of whitespace to a
// single space. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	collapsed := collapseSpace(s)
	if collapsed == "" {
		return ""
	}
	// A Caser holds state, so one is built per call.
	return cases.Lower(language.Und).String(collapsed)
}

// NormalizeForStorage trims and collapses whitespace but keeps the casing, so
// a stored company displays naturally and still dedupes via Normalize.
func NormalizeForStorage(company string) string {
	return collapseSpace(company)
}

// DedupeKey builds the comparison key for a contact. Two pairs yield the same
// key iff their normalized names and normalized companies are equal, except
// when a field itself contains KeySeparator.
func DedupeKey(name, company string) string {
	return Normalize(name) + KeySeparator + Normalize(company)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
