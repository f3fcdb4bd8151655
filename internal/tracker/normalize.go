package tracker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var whitespaceRun = regexp.MustCompile(`[\s\p{Cc}]+`)

// UnknownField is the sentinel for empty or absent scraped text.
const UnknownField = "Unknown"

const noResultsMarker = "no jobs"

// Normalize collapses internal whitespace and control characters, trims the
// result, and title-cases it. Empty input yields the Unknown sentinel.
func Normalize(text string) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if collapsed == "" {
		return UnknownField
	}
	return cases.Title(language.English).String(collapsed)
}

// IsValidEntry rejects (company, position) pairs that look like mis-scraped
// navigation chrome or empty-listing placeholders rather than job cards.
// Inputs are expected to be already normalized.
func IsValidEntry(company, position string) bool {
	if utf8.RuneCountInString(position) < 2 {
		return false
	}
	platform := strings.ToLower(PlatformLinkedIn)
	if strings.Contains(strings.ToLower(position), platform) {
		return false
	}
	lowerCompany := strings.ToLower(company)
	if strings.Contains(lowerCompany, platform) {
		return false
	}
	if strings.Contains(lowerCompany, noResultsMarker) {
		return false
	}
	return true
}
