package tracker

import (
	"context"
	"time"
)

// Store persists application records. Key uniqueness is enforced by the
// store itself; duplicate inserts are dropped, not errored.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	InsertOne(ctx context.Context, rec ApplicationRecord) (bool, error)
	InsertBatch(ctx context.Context, recs []ApplicationRecord) (int, error)
	UpdateStatus(ctx context.Context, keyPattern string, from, to Status, confirmationID string) (int64, error)
	List(ctx context.Context) ([]ApplicationRecord, error)
}

// Card is a handle to one visible listing entry on the page.
type Card interface {
	// Identifier returns the platform resource identifier embedded in the
	// card metadata, or "" when the card carries none.
	Identifier(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	SubText(ctx context.Context, selector string) (string, error)
}

// ListingPage is the browser-session capability the collector drives. One
// session maps to one logged-in browser tab; operations are sequential.
type ListingPage interface {
	Navigate(ctx context.Context, url string) error
	ScrollStep(ctx context.Context) error
	ContentLength(ctx context.Context) (int, error)
	ListCards(ctx context.Context) ([]Card, error)
	ClickNext(ctx context.Context) error
	NextDisabled(ctx context.Context) (bool, error)
	HTML(ctx context.Context) (string, error)
}

// MessageSource lists and fetches inbound confirmation messages.
type MessageSource interface {
	ListRecentMatching(ctx context.Context, query string) ([]string, error)
	FetchBody(ctx context.Context, id string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes cycle completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
