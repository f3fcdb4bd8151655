// Package scrape implements the applied-jobs listing collector: it drives a
// listing page session through scroll stabilization and pagination, extracts
// one candidate record per card, and dedups against the run and the store.
package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/tracker"
)

// DefaultListingURL is the platform's applied-jobs listing.
const DefaultListingURL = "https://www.linkedin.com/my-items/saved-jobs/?cardType=APPLIED"

// DefaultAppliedAgoSelector locates the per-card "applied X ago" sub-element.
const DefaultAppliedAgoSelector = "span.reusable-search-simple-insight__text--small"

// Config bounds the collector's convergence loops. Both waits have hard
// ceilings so a page that keeps growing, or a next-page click that never
// produces new cards, degrades to "assume done" instead of hanging.
type Config struct {
	ListingURL          string
	MaxPages            int
	MaxScrollIterations int
	ScrollSettleDelay   time.Duration
	PaginationWait      time.Duration
	PaginationPoll      time.Duration
	AppliedAgoSelector  string
	ArchiveSnapshots    bool
}

func (c Config) withDefaults() Config {
	if c.ListingURL == "" {
		c.ListingURL = DefaultListingURL
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.MaxScrollIterations <= 0 {
		c.MaxScrollIterations = 20
	}
	if c.ScrollSettleDelay <= 0 {
		c.ScrollSettleDelay = 1500 * time.Millisecond
	}
	if c.PaginationWait <= 0 {
		c.PaginationWait = 15 * time.Second
	}
	if c.PaginationPoll <= 0 {
		c.PaginationPoll = 500 * time.Millisecond
	}
	if c.AppliedAgoSelector == "" {
		c.AppliedAgoSelector = DefaultAppliedAgoSelector
	}
	return c
}

// Collector walks the listing one page at a time and accumulates candidate
// records. It owns no browser state itself; the session handle is injected
// and released by the caller.
type Collector struct {
	page   tracker.ListingPage
	store  tracker.Store
	clock  tracker.Clock
	blobs  tracker.BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewCollector constructs a Collector. The blob store is optional; when nil,
// page snapshots are not archived.
func NewCollector(
	page tracker.ListingPage,
	store tracker.Store,
	clock tracker.Clock,
	blobs tracker.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		page:   page,
		store:  store,
		clock:  clock,
		blobs:  blobs,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Collect runs one full pass over the listing. Only an unreachable listing
// or an unavailable store aborts the run; every per-card failure becomes a
// skip entry and every convergence timeout ends the run with what was
// gathered so far.
func (c *Collector) Collect(ctx context.Context) (tracker.CollectResult, error) {
	if err := c.page.Navigate(ctx, c.cfg.ListingURL); err != nil {
		return tracker.CollectResult{}, fmt.Errorf("navigate to listing: %w", err)
	}

	var result tracker.CollectResult
	seen := make(map[string]struct{})

	for pageNum := 1; pageNum <= c.cfg.MaxPages; pageNum++ {
		result.Pages = pageNum

		if err := c.stabilize(ctx); err != nil {
			return result, err
		}
		c.archiveSnapshot(ctx, pageNum, &result)

		if err := c.enumerate(ctx, pageNum, seen, &result); err != nil {
			return result, err
		}

		more, err := c.paginate(ctx, pageNum)
		if err != nil {
			return result, err
		}
		if !more {
			break
		}
	}

	c.logger.Info("listing pass complete",
		zap.Int("pages", result.Pages),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("skips", len(result.Skips)),
	)
	return result, nil
}

// stabilize scrolls until two consecutive content-length measurements agree,
// capped at MaxScrollIterations.
func (c *Collector) stabilize(ctx context.Context) error {
	prev := -1
	for i := 0; i < c.cfg.MaxScrollIterations; i++ {
		if err := c.page.ScrollStep(ctx); err != nil {
			c.logger.Warn("scroll step failed, proceeding with loaded content", zap.Error(err))
			return nil
		}
		if err := sleepCtx(ctx, c.cfg.ScrollSettleDelay); err != nil {
			return err
		}
		length, err := c.page.ContentLength(ctx)
		if err != nil {
			c.logger.Warn("content length probe failed, proceeding", zap.Error(err))
			return nil
		}
		if length == prev {
			return nil
		}
		prev = length
	}
	c.logger.Warn("scroll stabilization hit iteration ceiling, proceeding",
		zap.Int("max_iterations", c.cfg.MaxScrollIterations))
	return nil
}

// enumerate extracts one candidate per visible card. A failure on any single
// card becomes a skip entry and never interrupts the remaining cards.
func (c *Collector) enumerate(ctx context.Context, pageNum int, seen map[string]struct{}, result *tracker.CollectResult) error {
	cards, err := c.page.ListCards(ctx)
	if err != nil {
		c.logger.Warn("card enumeration failed, ending run with gathered content", zap.Error(err))
		return nil
	}

	for _, card := range cards {
		cand, skip, err := c.extract(ctx, pageNum, card, seen)
		if err != nil {
			return err
		}
		if skip != nil {
			result.Skips = append(result.Skips, *skip)
			continue
		}
		result.Candidates = append(result.Candidates, cand)
		seen[cand.Key] = struct{}{}
	}
	return nil
}

// extract turns one card into a candidate record or a skip reason. The only
// error it returns is store unavailability, which is fatal for the cycle.
func (c *Collector) extract(ctx context.Context, pageNum int, card tracker.Card, seen map[string]struct{}) (tracker.ApplicationRecord, *tracker.Skip, error) {
	var zero tracker.ApplicationRecord

	id, err := card.Identifier(ctx)
	if err != nil {
		return zero, &tracker.Skip{Reason: tracker.SkipStaleCard, Page: pageNum, Detail: err.Error()}, nil
	}
	if id == "" {
		return zero, &tracker.Skip{Reason: tracker.SkipNoIdentifier, Page: pageNum}, nil
	}
	key := tracker.CanonicalJobURL(id)

	text, err := card.Text(ctx)
	if err != nil {
		return zero, &tracker.Skip{Reason: tracker.SkipStaleCard, Identifier: id, Page: pageNum, Detail: err.Error()}, nil
	}
	lines := cardLines(text)
	if len(lines) < 2 {
		return zero, &tracker.Skip{Reason: tracker.SkipTooFewLines, Identifier: id, Page: pageNum}, nil
	}
	position := tracker.Normalize(lines[0])
	company := tracker.Normalize(lines[1])
	if !tracker.IsValidEntry(company, position) {
		return zero, &tracker.Skip{Reason: tracker.SkipInvalidEntry, Identifier: id, Page: pageNum}, nil
	}

	if _, dup := seen[key]; dup {
		return zero, &tracker.Skip{Reason: tracker.SkipDuplicateRun, Identifier: id, Page: pageNum}, nil
	}
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return zero, nil, fmt.Errorf("store existence check for %q: %w", key, err)
	}
	if exists {
		return zero, &tracker.Skip{Reason: tracker.SkipDuplicateStore, Identifier: id, Page: pageNum}, nil
	}

	// A missing or detached "applied X ago" sub-element downgrades to
	// "today"; it never costs us the card.
	dateApplied := c.clock.Now()
	if appliedText, err := card.SubText(ctx, c.cfg.AppliedAgoSelector); err == nil {
		dateApplied = tracker.ResolveAppliedDate(appliedText, c.clock.Now())
	}

	return tracker.ApplicationRecord{
		Key:         key,
		DateApplied: dateApplied,
		Platform:    tracker.PlatformLinkedIn,
		Company:     company,
		Position:    position,
		Status:      tracker.StatusApplied,
		Notes:       tracker.ImportNote,
	}, nil, nil
}

// paginate advances to the next page and blocks until at least one card
// identifier absent from the pre-click snapshot shows up. Timeouts and
// click failures mean "no more content", not errors.
func (c *Collector) paginate(ctx context.Context, pageNum int) (bool, error) {
	disabled, err := c.page.NextDisabled(ctx)
	if err != nil || disabled {
		return false, nil
	}

	before, err := c.cardIdentifiers(ctx)
	if err != nil {
		return false, nil
	}
	if err := c.page.ClickNext(ctx); err != nil {
		c.logger.Warn("next-page click failed, treating as last page",
			zap.Int("page", pageNum), zap.Error(err))
		return false, nil
	}
	if !c.waitForNewCards(ctx, before) {
		c.logger.Warn("no new cards after next-page click, treating as last page",
			zap.Int("page", pageNum))
		return false, nil
	}
	return true, nil
}

func (c *Collector) waitForNewCards(ctx context.Context, before map[string]struct{}) bool {
	deadline := time.Now().Add(c.cfg.PaginationWait)
	for time.Now().Before(deadline) {
		ids, err := c.cardIdentifiers(ctx)
		if err == nil {
			for id := range ids {
				if _, ok := before[id]; !ok {
					return true
				}
			}
		}
		if err := sleepCtx(ctx, c.cfg.PaginationPoll); err != nil {
			return false
		}
	}
	return false
}

func (c *Collector) cardIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	cards, err := c.page.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(cards))
	for _, card := range cards {
		id, err := card.Identifier(ctx)
		if err != nil || id == "" {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (c *Collector) archiveSnapshot(ctx context.Context, pageNum int, result *tracker.CollectResult) {
	if c.blobs == nil || !c.cfg.ArchiveSnapshots {
		return
	}
	html, err := c.page.HTML(ctx)
	if err != nil {
		c.logger.Warn("page snapshot capture failed", zap.Int("page", pageNum), zap.Error(err))
		return
	}
	path := fmt.Sprintf("listing/%s/page-%03d.html", c.clock.Now().Format("2006-01-02T15-04-05Z"), pageNum)
	uri, err := c.blobs.PutObject(ctx, path, "text/html; charset=utf-8", []byte(html))
	if err != nil {
		c.logger.Warn("page snapshot upload failed", zap.Int("page", pageNum), zap.Error(err))
		return
	}
	result.Snapshots = append(result.Snapshots, uri)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
