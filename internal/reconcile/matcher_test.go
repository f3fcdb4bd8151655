package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applytrail/tracker/internal/storage/memory"
	"github.com/applytrail/tracker/internal/tracker"
)

type fakeSource struct {
	ids     []string
	bodies  map[string]string
	listErr error
	failIDs map[string]error
}

func (s *fakeSource) ListRecentMatching(context.Context, string) ([]string, error) {
	return s.ids, s.listErr
}

func (s *fakeSource) FetchBody(_ context.Context, id string) (string, error) {
	if err, ok := s.failIDs[id]; ok {
		return "", err
	}
	return s.bodies[id], nil
}

func pendingRecord(key string) tracker.ApplicationRecord {
	return tracker.ApplicationRecord{
		Key:         key,
		DateApplied: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Platform:    tracker.PlatformLinkedIn,
		Company:     "Acme",
		Position:    "Engineer",
		Status:      tracker.StatusPending,
	}
}

func TestReconcileConfirmsPendingRecord(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	ctx := context.Background()
	_, err := store.InsertOne(ctx, pendingRecord("https://www.linkedin.com/jobs/view/222"))
	require.NoError(t, err)

	source := &fakeSource{
		ids: []string{"msg-1"},
		bodies: map[string]string{
			"msg-1": "your application was sent: https://www.linkedin.com/jobs/view/222 good luck",
		},
	}
	matcher := NewMatcher(source, store, "", nil)

	result, err := matcher.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, []string{"https://www.linkedin.com/jobs/view/222"}, result.Confirmed)

	rec, ok := store.Get("https://www.linkedin.com/jobs/view/222")
	require.True(t, ok)
	assert.Equal(t, tracker.StatusConfirmed, rec.Status)
	assert.Equal(t, "msg-1", rec.ConfirmationID)
}

func TestReconcileSubstringMatchesKeyVariants(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	ctx := context.Background()
	_, err := store.InsertOne(ctx, pendingRecord("https://www.linkedin.com/jobs/view/222?refId=xyz"))
	require.NoError(t, err)

	source := &fakeSource{
		ids:    []string{"msg-1"},
		bodies: map[string]string{"msg-1": "see https://www.linkedin.com/jobs/view/222"},
	}
	matcher := NewMatcher(source, store, "", nil)

	result, err := matcher.Reconcile(ctx)
	require.NoError(t, err)
	// The extracted URL is what gets reported, even though the stored key
	// carries an extra query parameter.
	assert.Equal(t, []string{"https://www.linkedin.com/jobs/view/222"}, result.Confirmed)

	rec, _ := store.Get("https://www.linkedin.com/jobs/view/222?refId=xyz")
	assert.Equal(t, tracker.StatusConfirmed, rec.Status)
}

func TestReconcileNeverTouchesNonPending(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	ctx := context.Background()

	applied := pendingRecord("https://www.linkedin.com/jobs/view/111")
	applied.Status = tracker.StatusApplied
	confirmed := pendingRecord("https://www.linkedin.com/jobs/view/333")
	confirmed.Status = tracker.StatusConfirmed
	confirmed.ConfirmationID = "earlier-msg"
	_, err := store.InsertBatch(ctx, []tracker.ApplicationRecord{applied, confirmed})
	require.NoError(t, err)

	source := &fakeSource{
		ids: []string{"msg-1", "msg-2"},
		bodies: map[string]string{
			"msg-1": "https://www.linkedin.com/jobs/view/111",
			"msg-2": "https://www.linkedin.com/jobs/view/333",
		},
	}
	matcher := NewMatcher(source, store, "", nil)

	result, err := matcher.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Confirmed)

	rec, _ := store.Get("https://www.linkedin.com/jobs/view/111")
	assert.Equal(t, tracker.StatusApplied, rec.Status)
	rec, _ = store.Get("https://www.linkedin.com/jobs/view/333")
	assert.Equal(t, "earlier-msg", rec.ConfirmationID)
}

func TestReconcileSkipsUnmatchedAndFailedMessages(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	source := &fakeSource{
		ids: []string{"msg-1", "msg-2"},
		bodies: map[string]string{
			"msg-1": "a newsletter with no job link",
		},
		failIDs: map[string]error{"msg-2": errors.New("rate limited")},
	}
	matcher := NewMatcher(source, store, "", nil)

	result, err := matcher.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Empty(t, result.Confirmed)
	require.Len(t, result.Skips, 2)
	assert.Equal(t, tracker.SkipNoURLMatch, result.Skips[0].Reason)
	assert.Equal(t, tracker.SkipFetchFailed, result.Skips[1].Reason)
}

func TestReconcileListFailureIsFatal(t *testing.T) {
	t.Parallel()

	source := &fakeSource{listErr: errors.New("gmail unavailable")}
	matcher := NewMatcher(source, memory.NewApplicationStore(), "", nil)

	_, err := matcher.Reconcile(context.Background())
	require.Error(t, err)
}
