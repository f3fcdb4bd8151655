// Package tracker defines core types shared across subsystems.
package tracker

import "time"

// Status represents the lifecycle state of a tracked application.
type Status string

// Status values persisted in the applications table.
const (
	StatusApplied   Status = "Applied"
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
)

// ParseStatus converts a raw string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusApplied, StatusPending, StatusConfirmed:
		return Status(s), true
	}
	return "", false
}

// CanTransition reports whether moving from one status to another is allowed.
// The only forward edge is Pending -> Confirmed; a status never regresses.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to == StatusConfirmed
}

// Platform and provenance literals stamped on scraped records.
const (
	PlatformLinkedIn = "LinkedIn"
	ImportNote       = "Auto-imported from LinkedIn Applied Jobs"
)

// ApplicationRecord is the unit of persistence. Key is the canonical job
// posting URL and is unique across all stored records.
type ApplicationRecord struct {
	Key            string    `json:"job_url"`
	DateApplied    time.Time `json:"date_applied"`
	Platform       string    `json:"platform"`
	Company        string    `json:"company"`
	Position       string    `json:"position"`
	Status         Status    `json:"application_status"`
	ConfirmationID string    `json:"email_id,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// SkipReason classifies why a card or message was dropped during a cycle.
type SkipReason string

// Skip reasons reported by the collector and the matcher.
const (
	SkipNoIdentifier   SkipReason = "no_identifier"
	SkipTooFewLines    SkipReason = "too_few_lines"
	SkipInvalidEntry   SkipReason = "invalid_entry"
	SkipDuplicateRun   SkipReason = "duplicate_in_run"
	SkipDuplicateStore SkipReason = "duplicate_in_store"
	SkipStaleCard      SkipReason = "stale_card"
	SkipFetchFailed    SkipReason = "fetch_failed"
	SkipNoURLMatch     SkipReason = "no_url_match"
)

// Skip records one dropped item together with enough context to debug it.
type Skip struct {
	Reason     SkipReason `json:"reason"`
	Identifier string     `json:"identifier,omitempty"`
	Page       int        `json:"page,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// CollectResult is the outcome of one scrape pass over the listing.
type CollectResult struct {
	Candidates []ApplicationRecord `json:"candidates"`
	Skips      []Skip              `json:"skips"`
	Pages      int                 `json:"pages"`
	Snapshots  []string            `json:"snapshots,omitempty"`
}

// BatchResult reports how a candidate batch fared against the store.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// CycleResult is returned by the scrape entry point.
type CycleResult struct {
	Collected int      `json:"collected"`
	Inserted  int      `json:"inserted"`
	Skipped   int      `json:"skipped"`
	Pages     int      `json:"pages"`
	Skips     []Skip   `json:"skips,omitempty"`
	Snapshots []string `json:"snapshots,omitempty"`
}

// ReconcileResult is returned by the reconciliation entry point. Confirmed
// holds the job URLs extracted from the messages, not the stored keys they
// transitioned; the two differ when a stored key carries query parameters.
type ReconcileResult struct {
	Scanned   int      `json:"scanned"`
	Confirmed []string `json:"confirmed"`
	Skips     []Skip   `json:"skips,omitempty"`
}
