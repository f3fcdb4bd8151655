package tracker

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeAge = regexp.MustCompile(`(\d+)\s*([dwmy])`)

// ResolveAppliedDate converts free text such as "Applied 4d ago" or
// "Application viewed 2w ago" into an absolute date relative to ref. Months
// and years are approximated as 30 and 365 days; only the first match in the
// text counts. Anything unparseable resolves to ref itself.
func ResolveAppliedDate(text string, ref time.Time) time.Time {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return ref
	}
	match := relativeAge.FindStringSubmatch(trimmed)
	if match == nil {
		return ref
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return ref
	}
	switch match[2] {
	case "d":
		return ref.AddDate(0, 0, -n)
	case "w":
		return ref.AddDate(0, 0, -n*7)
	case "m":
		return ref.AddDate(0, 0, -n*30)
	case "y":
		return ref.AddDate(0, 0, -n*365)
	}
	return ref
}
