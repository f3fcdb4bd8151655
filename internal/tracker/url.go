package tracker

import (
	"regexp"
	"strings"
)

// JobViewURLPrefix is the platform's canonical job posting URL scheme.
const JobViewURLPrefix = "https://www.linkedin.com/jobs/view/"

// jobViewURL matches a canonical job posting URL embedded anywhere in text.
var jobViewURL = regexp.MustCompile(`https://www\.linkedin\.com/jobs/view/\d+`)

// CanonicalJobURL templates a card's resource identifier into the platform's
// job-view URL scheme. Identifiers arrive URN-shaped
// ("urn:li:jobPosting:4012345678"); only the trailing segment is the id.
func CanonicalJobURL(identifier string) string {
	parts := strings.Split(identifier, ":")
	return JobViewURLPrefix + parts[len(parts)-1]
}

// ExtractJobURL pulls the first canonical job posting URL out of free text,
// returning "" when none is present.
func ExtractJobURL(text string) string {
	return jobViewURL.FindString(text)
}
