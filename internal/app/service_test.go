package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/metrics"
	pubmem "github.com/applytrail/tracker/internal/publisher/memory"
	"github.com/applytrail/tracker/internal/reconcile"
	"github.com/applytrail/tracker/internal/scrape"
	"github.com/applytrail/tracker/internal/storage/memory"
	"github.com/applytrail/tracker/internal/tracker"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeCard struct {
	urn  string
	text string
	sub  string
}

func (c *fakeCard) Identifier(context.Context) (string, error) { return c.urn, nil }
func (c *fakeCard) Text(context.Context) (string, error)       { return c.text, nil }
func (c *fakeCard) SubText(context.Context, string) (string, error) {
	return c.sub, nil
}

// fakeSession is a one-page listing session that records lifecycle calls.
type fakeSession struct {
	cards     []*fakeCard
	loginErr  error
	loggedIn  bool
	closed    bool
	navigated string
}

func (s *fakeSession) Login(context.Context) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.loggedIn = true
	return nil
}

func (s *fakeSession) Close() { s.closed = true }

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.navigated = url
	return nil
}

func (s *fakeSession) ScrollStep(context.Context) error         { return nil }
func (s *fakeSession) ContentLength(context.Context) (int, error) { return 100, nil }

func (s *fakeSession) ListCards(context.Context) ([]tracker.Card, error) {
	out := make([]tracker.Card, len(s.cards))
	for i, c := range s.cards {
		out[i] = c
	}
	return out, nil
}

func (s *fakeSession) ClickNext(context.Context) error          { return nil }
func (s *fakeSession) NextDisabled(context.Context) (bool, error) { return true, nil }
func (s *fakeSession) HTML(context.Context) (string, error)     { return "<main/>", nil }

func fastScrapeConfig() scrape.Config {
	return scrape.Config{
		MaxPages:            3,
		MaxScrollIterations: 3,
		ScrollSettleDelay:   time.Nanosecond,
		PaginationWait:      10 * time.Millisecond,
		PaginationPoll:      time.Millisecond,
	}
}

func TestRunScrapeCycleMergesAndCloses(t *testing.T) {
	t.Parallel()

	session := &fakeSession{cards: []*fakeCard{
		{
			urn:  "urn:li:activity:111",
			text: "Backend Engineer\nAcme Corp\nRemote",
			sub:  "Applied 3d ago",
		},
		{
			urn:  "urn:li:activity:222",
			text: "Data Engineer\nGlobex\nBerlin",
			sub:  "Applied 1w ago",
		},
	}}
	store := memory.NewApplicationStore()
	publisher := pubmem.New()
	clock := fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	svc := NewService(
		func(context.Context) (ScrapeSession, error) { return session, nil },
		store, clock, fastScrapeConfig(),
		Options{Publisher: publisher, Topic: "tracker-cycles"},
		zap.NewNop(),
	)

	result, err := svc.RunScrapeCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Collected)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Skipped)
	assert.True(t, session.loggedIn)
	assert.True(t, session.closed)
	assert.Equal(t, 2, store.Len())

	require.Len(t, publisher.Messages(), 1)
	assert.Equal(t, "tracker-cycles", publisher.Messages()[0].Topic)

	// A second run over the same listing inserts nothing new.
	session.closed = false
	again, err := svc.RunScrapeCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.True(t, session.closed)
}

func TestRunScrapeCycleLoginFailureClosesSession(t *testing.T) {
	t.Parallel()

	session := &fakeSession{loginErr: errors.New("challenge page")}
	svc := NewService(
		func(context.Context) (ScrapeSession, error) { return session, nil },
		memory.NewApplicationStore(),
		fixedClock{now: time.Now()},
		fastScrapeConfig(),
		Options{},
		zap.NewNop(),
	)

	_, err := svc.RunScrapeCycle(context.Background())
	require.Error(t, err)
	assert.True(t, session.closed)
}

func TestRunScrapeCycleSessionOpenFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(
		func(context.Context) (ScrapeSession, error) {
			return nil, errors.New("chrome not found")
		},
		memory.NewApplicationStore(),
		fixedClock{now: time.Now()},
		fastScrapeConfig(),
		Options{},
		zap.NewNop(),
	)

	_, err := svc.RunScrapeCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open scrape session")
}

func TestRunReconcileCycleDisabled(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, memory.NewApplicationStore(), fixedClock{now: time.Now()},
		fastScrapeConfig(), Options{}, zap.NewNop())

	_, err := svc.RunReconcileCycle(context.Background())
	assert.ErrorIs(t, err, ErrReconcileDisabled)
}

type staticSource struct {
	ids    []string
	bodies map[string]string
}

func (s *staticSource) ListRecentMatching(context.Context, string) ([]string, error) {
	return s.ids, nil
}

func (s *staticSource) FetchBody(_ context.Context, id string) (string, error) {
	return s.bodies[id], nil
}

func TestRunReconcileCycleConfirmsPending(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	ctx := context.Background()
	_, err := store.InsertOne(ctx, tracker.ApplicationRecord{
		Key:         "https://www.linkedin.com/jobs/view/4242",
		DateApplied: time.Now(),
		Platform:    tracker.PlatformLinkedIn,
		Company:     "Acme Corp",
		Position:    "Backend Engineer",
		Status:      tracker.StatusPending,
	})
	require.NoError(t, err)

	source := &staticSource{
		ids: []string{"msg-1"},
		bodies: map[string]string{
			"msg-1": "Your application was sent. View it at https://www.linkedin.com/jobs/view/4242",
		},
	}
	matcher := reconcile.NewMatcher(source, store, "", zap.NewNop())

	svc := NewService(nil, store, fixedClock{now: time.Now()}, fastScrapeConfig(),
		Options{Matcher: matcher}, zap.NewNop())

	result, err := svc.RunReconcileCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	require.Len(t, result.Confirmed, 1)

	rec, ok := store.Get("https://www.linkedin.com/jobs/view/4242")
	require.True(t, ok)
	assert.Equal(t, tracker.StatusConfirmed, rec.Status)
	assert.Equal(t, "msg-1", rec.ConfirmationID)
}

func TestAddApplicationDefaults(t *testing.T) {
	t.Parallel()

	store := memory.NewApplicationStore()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(nil, store, fixedClock{now: now}, fastScrapeConfig(),
		Options{}, zap.NewNop())

	inserted, err := svc.AddApplication(context.Background(), tracker.ApplicationRecord{
		Key:      "https://example.com/jobs/1",
		Platform: "Greenhouse",
		Company:  "Initech",
		Position: "SRE",
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	rec, ok := store.Get("https://example.com/jobs/1")
	require.True(t, ok)
	assert.Equal(t, tracker.StatusPending, rec.Status)
	assert.Equal(t, now, rec.DateApplied)

	// A caller-supplied status is overridden, never honored.
	inserted, err = svc.AddApplication(context.Background(), tracker.ApplicationRecord{
		Key:      "https://example.com/jobs/2",
		Platform: "Greenhouse",
		Company:  "Initech",
		Position: "SRE",
		Status:   tracker.StatusConfirmed,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	rec, ok = store.Get("https://example.com/jobs/2")
	require.True(t, ok)
	assert.Equal(t, tracker.StatusPending, rec.Status)

	// Same key again is a silent no-op.
	inserted, err = svc.AddApplication(context.Background(), tracker.ApplicationRecord{
		Key:      "https://example.com/jobs/1",
		Platform: "Greenhouse",
		Company:  "Initech",
		Position: "SRE",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}
