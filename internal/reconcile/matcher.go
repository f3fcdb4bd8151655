// Package reconcile correlates inbound confirmation messages with stored
// pending applications and advances their status.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/tracker"
)

// DefaultQuery selects recent platform confirmation emails.
const DefaultQuery = `from:(jobs-noreply@linkedin.com) subject:(your application was sent to) newer_than:7d`

// Matcher scans confirmation messages for embedded job posting URLs and
// transitions matching Pending records to Confirmed.
type Matcher struct {
	source tracker.MessageSource
	store  tracker.Store
	query  string
	logger *zap.Logger
}

// NewMatcher constructs a Matcher. An empty query falls back to DefaultQuery.
func NewMatcher(source tracker.MessageSource, store tracker.Store, query string, logger *zap.Logger) *Matcher {
	if query == "" {
		query = DefaultQuery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{source: source, store: store, query: query, logger: logger}
}

// Reconcile runs one pass over recent messages. A message without a job URL
// is ignored; a matched URL that transitions no rows is also not an error
// (the application may not be stored yet, or is already confirmed). Keys are
// matched by substring to tolerate trailing-parameter drift. Only source or
// store unavailability fails the pass.
func (m *Matcher) Reconcile(ctx context.Context) (tracker.ReconcileResult, error) {
	ids, err := m.source.ListRecentMatching(ctx, m.query)
	if err != nil {
		return tracker.ReconcileResult{}, fmt.Errorf("list confirmation messages: %w", err)
	}

	result := tracker.ReconcileResult{Scanned: len(ids)}
	for _, id := range ids {
		body, err := m.source.FetchBody(ctx, id)
		if err != nil {
			m.logger.Warn("message fetch failed, skipping", zap.String("message_id", id), zap.Error(err))
			result.Skips = append(result.Skips, tracker.Skip{
				Reason:     tracker.SkipFetchFailed,
				Identifier: id,
				Detail:     err.Error(),
			})
			continue
		}

		jobURL := tracker.ExtractJobURL(body)
		if jobURL == "" {
			result.Skips = append(result.Skips, tracker.Skip{
				Reason:     tracker.SkipNoURLMatch,
				Identifier: id,
			})
			continue
		}

		affected, err := m.store.UpdateStatus(ctx, jobURL, tracker.StatusPending, tracker.StatusConfirmed, id)
		if err != nil {
			return result, fmt.Errorf("confirm application %q: %w", jobURL, err)
		}
		// Confirmed reports the URL extracted from the message, which is
		// the only key the Store capability exposes here; a stored key
		// carrying extra query parameters is matched by substring and thus
		// reported under the shorter extracted form.
		if affected > 0 {
			m.logger.Info("application confirmed",
				zap.String("job_url", jobURL),
				zap.String("message_id", id),
				zap.Int64("rows", affected),
			)
			result.Confirmed = append(result.Confirmed, jobURL)
		}
	}
	return result, nil
}
