// Package ingest merges scraped candidate batches into the durable store.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/tracker"
)

// Merger filters candidates against the store's unique keys and inserts the
// remainder as one batch. Safe to call repeatedly with the same batch.
type Merger struct {
	store  tracker.Store
	logger *zap.Logger
}

// NewMerger constructs a Merger.
func NewMerger(store tracker.Store, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{store: store, logger: logger}
}

// MergeBatch partitions candidates into new vs already-stored, inserts the
// new ones atomically, and reports counts. An empty batch is a no-op. A
// duplicate key discovered only at insert time (raced by another writer) is
// counted as skipped, not errored.
func (m *Merger) MergeBatch(ctx context.Context, candidates []tracker.ApplicationRecord) (tracker.BatchResult, error) {
	if len(candidates) == 0 {
		return tracker.BatchResult{}, nil
	}

	fresh := make([]tracker.ApplicationRecord, 0, len(candidates))
	for _, cand := range candidates {
		exists, err := m.store.Exists(ctx, cand.Key)
		if err != nil {
			return tracker.BatchResult{}, fmt.Errorf("check existing key %q: %w", cand.Key, err)
		}
		if exists {
			m.logger.Debug("skipping known application", zap.String("key", cand.Key))
			continue
		}
		fresh = append(fresh, cand)
	}

	inserted := 0
	if len(fresh) > 0 {
		var err error
		inserted, err = m.store.InsertBatch(ctx, fresh)
		if err != nil {
			return tracker.BatchResult{}, fmt.Errorf("insert batch: %w", err)
		}
	}

	result := tracker.BatchResult{
		Inserted: inserted,
		Skipped:  len(candidates) - inserted,
	}
	m.logger.Info("merged candidate batch",
		zap.Int("candidates", len(candidates)),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}
