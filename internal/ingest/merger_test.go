package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/applytrail/tracker/internal/storage/memory"
	"github.com/applytrail/tracker/internal/tracker"
)

func candidate(key string) tracker.ApplicationRecord {
	return tracker.ApplicationRecord{
		Key:         key,
		DateApplied: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Platform:    tracker.PlatformLinkedIn,
		Company:     "Acme",
		Position:    "Engineer",
		Status:      tracker.StatusApplied,
		Notes:       tracker.ImportNote,
	}
}

func TestMergeBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	merger := NewMerger(store, nil)
	ctx := context.Background()

	batch := []tracker.ApplicationRecord{
		candidate("https://www.linkedin.com/jobs/view/111"),
		candidate("https://www.linkedin.com/jobs/view/222"),
	}

	result, err := merger.MergeBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, tracker.BatchResult{Inserted: 2, Skipped: 0}, result)

	result, err = merger.MergeBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, tracker.BatchResult{Inserted: 0, Skipped: 2}, result)
	require.Equal(t, 2, store.Len())
}

func TestMergeBatchEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	merger := NewMerger(memory.NewApplicationStore(), nil)
	result, err := merger.MergeBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, result.Inserted)
	require.Zero(t, result.Skipped)
}

func TestMergeBatchMixedBatch(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	merger := NewMerger(store, nil)
	ctx := context.Background()

	_, err := merger.MergeBatch(ctx, []tracker.ApplicationRecord{
		candidate("https://www.linkedin.com/jobs/view/111"),
	})
	require.NoError(t, err)

	result, err := merger.MergeBatch(ctx, []tracker.ApplicationRecord{
		candidate("https://www.linkedin.com/jobs/view/111"),
		candidate("https://www.linkedin.com/jobs/view/333"),
	})
	require.NoError(t, err)
	require.Equal(t, tracker.BatchResult{Inserted: 1, Skipped: 1}, result)
}

type failingStore struct {
	*memory.ApplicationStore
}

func (f failingStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestMergeBatchSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	merger := NewMerger(failingStore{memory.NewApplicationStore()}, nil)
	_, err := merger.MergeBatch(context.Background(), []tracker.ApplicationRecord{
		candidate("https://www.linkedin.com/jobs/view/111"),
	})
	require.Error(t, err)
}
