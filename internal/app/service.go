// Package app wires the scrape and reconcile pipelines behind the service
// entry points consumed by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/ingest"
	"github.com/applytrail/tracker/internal/metrics"
	"github.com/applytrail/tracker/internal/reconcile"
	"github.com/applytrail/tracker/internal/scrape"
	"github.com/applytrail/tracker/internal/tracker"
)

// ErrReconcileDisabled indicates no message source has been configured.
var ErrReconcileDisabled = errors.New("reconciliation is not configured")

// ScrapeSession is a listing page plus its session lifecycle.
type ScrapeSession interface {
	tracker.ListingPage
	Login(ctx context.Context) error
	Close()
}

// SessionFactory opens a fresh browser session for one scrape run.
type SessionFactory func(ctx context.Context) (ScrapeSession, error)

// Service exposes the tracker's two cycles and the single-add path.
type Service struct {
	sessions  SessionFactory
	store     tracker.Store
	merger    *ingest.Merger
	matcher   *reconcile.Matcher
	publisher tracker.Publisher
	blobs     tracker.BlobStore
	clock     tracker.Clock
	scrapeCfg scrape.Config
	topic     string
	logger    *zap.Logger

	// One browser session at a time; concurrent scrape triggers queue up.
	scrapeMu sync.Mutex
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Matcher   *reconcile.Matcher
	Publisher tracker.Publisher
	Blobs     tracker.BlobStore
	Topic     string
}

// NewService constructs a Service.
func NewService(
	sessions SessionFactory,
	store tracker.Store,
	clock tracker.Clock,
	scrapeCfg scrape.Config,
	opts Options,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  sessions,
		store:     store,
		merger:    ingest.NewMerger(store, logger),
		matcher:   opts.Matcher,
		publisher: opts.Publisher,
		blobs:     opts.Blobs,
		clock:     clock,
		scrapeCfg: scrapeCfg,
		topic:     opts.Topic,
		logger:    logger,
	}
}

// RunScrapeCycle opens a session, walks the listing, and merges the
// resulting batch. The session is closed on every exit path.
func (s *Service) RunScrapeCycle(ctx context.Context) (tracker.CycleResult, error) {
	s.scrapeMu.Lock()
	defer s.scrapeMu.Unlock()

	start := time.Now()
	result, err := s.runScrape(ctx)
	if err != nil {
		metrics.ObserveScrapeCycle("failed", time.Since(start))
		return result, err
	}
	metrics.ObserveScrapeCycle("succeeded", time.Since(start))
	return result, nil
}

func (s *Service) runScrape(ctx context.Context) (tracker.CycleResult, error) {
	session, err := s.sessions(ctx)
	if err != nil {
		return tracker.CycleResult{}, fmt.Errorf("open scrape session: %w", err)
	}
	defer session.Close()

	if err := session.Login(ctx); err != nil {
		return tracker.CycleResult{}, err
	}

	collector := scrape.NewCollector(session, s.store, s.clock, s.blobs, s.scrapeCfg, s.logger)
	collected, err := collector.Collect(ctx)
	if err != nil {
		return tracker.CycleResult{}, err
	}
	for _, skip := range collected.Skips {
		metrics.ObserveSkip(string(skip.Reason))
	}

	batch, err := s.merger.MergeBatch(ctx, collected.Candidates)
	if err != nil {
		return tracker.CycleResult{}, err
	}
	metrics.ObserveMerge(batch.Inserted, batch.Skipped)

	result := tracker.CycleResult{
		Collected: len(collected.Candidates),
		Inserted:  batch.Inserted,
		Skipped:   batch.Skipped,
		Pages:     collected.Pages,
		Skips:     collected.Skips,
		Snapshots: collected.Snapshots,
	}
	s.publishCycleEvent(ctx, result)
	return result, nil
}

func (s *Service) publishCycleEvent(ctx context.Context, result tracker.CycleResult) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	id, err := s.publisher.Publish(ctx, s.topic, result)
	if err != nil {
		s.logger.Warn("cycle event publish failed", zap.Error(err))
		return
	}
	s.logger.Debug("cycle event published", zap.String("message_id", id))
}

// RunReconcileCycle runs one reconciliation pass over recent confirmation
// messages.
func (s *Service) RunReconcileCycle(ctx context.Context) (tracker.ReconcileResult, error) {
	if s.matcher == nil {
		return tracker.ReconcileResult{}, ErrReconcileDisabled
	}
	result, err := s.matcher.Reconcile(ctx)
	if err != nil {
		metrics.ObserveReconcilePass("failed", 0)
		return result, err
	}
	metrics.ObserveReconcilePass("succeeded", len(result.Confirmed))
	return result, nil
}

// AddApplication records a single application submitted through the API.
// The record always enters as Pending regardless of the caller's input, the
// date defaults to today, and a duplicate key reports inserted=false without
// error. Confirmed is reachable only through reconciliation.
func (s *Service) AddApplication(ctx context.Context, rec tracker.ApplicationRecord) (bool, error) {
	rec.Status = tracker.StatusPending
	if rec.DateApplied.IsZero() {
		rec.DateApplied = s.clock.Now()
	}
	inserted, err := s.store.InsertOne(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("insert application: %w", err)
	}
	return inserted, nil
}

// ListApplications returns all stored records.
func (s *Service) ListApplications(ctx context.Context) ([]tracker.ApplicationRecord, error) {
	return s.store.List(ctx)
}
