// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/applytrail/tracker/internal/tracker"
)

// ApplicationStore keeps records in a map keyed by job URL. It mirrors the
// Postgres store's semantics: duplicate keys are dropped, not errored, and
// status only advances through allowed transitions.
type ApplicationStore struct {
	mu      sync.RWMutex
	recs    map[string]tracker.ApplicationRecord
	seqs    map[string]uint64
	nextSeq uint64
}

// NewApplicationStore constructs an empty ApplicationStore.
func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		recs: make(map[string]tracker.ApplicationRecord),
		seqs: make(map[string]uint64),
	}
}

// Exists reports whether key is already stored.
func (s *ApplicationStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recs[key]
	return ok, nil
}

// InsertOne stores rec unless its key is already present.
func (s *ApplicationStore) InsertOne(_ context.Context, rec tracker.ApplicationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.Key]; ok {
		return false, nil
	}
	s.store(rec)
	return true, nil
}

func (s *ApplicationStore) store(rec tracker.ApplicationRecord) {
	s.nextSeq++
	s.recs[rec.Key] = rec
	s.seqs[rec.Key] = s.nextSeq
}

// InsertBatch stores every record whose key is new and returns the count.
func (s *ApplicationStore) InsertBatch(_ context.Context, recs []tracker.ApplicationRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, rec := range recs {
		if _, ok := s.recs[rec.Key]; ok {
			continue
		}
		s.store(rec)
		inserted++
	}
	return inserted, nil
}

// UpdateStatus transitions every record whose key contains keyPattern and
// whose status equals from.
func (s *ApplicationStore) UpdateStatus(
	_ context.Context,
	keyPattern string,
	from, to tracker.Status,
	confirmationID string,
) (int64, error) {
	if keyPattern == "" {
		return 0, fmt.Errorf("key pattern is required")
	}
	if !tracker.CanTransition(from, to) {
		return 0, fmt.Errorf("status transition %s -> %s is not allowed", from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for key, rec := range s.recs {
		if rec.Status != from || !strings.Contains(key, keyPattern) {
			continue
		}
		rec.Status = to
		rec.ConfirmationID = confirmationID
		s.recs[key] = rec
		affected++
	}
	return affected, nil
}

// List returns all records ordered by date applied, newest first. Same-day
// records tie-break on insertion order, latest first, matching the Postgres
// store's id ordering.
func (s *ApplicationStore) List(_ context.Context) ([]tracker.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]tracker.ApplicationRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].DateApplied.Equal(recs[j].DateApplied) {
			return recs[i].DateApplied.After(recs[j].DateApplied)
		}
		return s.seqs[recs[i].Key] > s.seqs[recs[j].Key]
	})
	return recs, nil
}

// Get returns a stored record by exact key, for assertions in tests.
func (s *ApplicationStore) Get(key string) (tracker.ApplicationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key]
	return rec, ok
}

// Len reports the number of stored records.
func (s *ApplicationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
