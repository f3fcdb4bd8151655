package scrape

import "strings"

// cardLines splits a card's raw text into trimmed lines; line 0 carries the
// position and line 1 the company.
func cardLines(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}
