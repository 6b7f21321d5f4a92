// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/seguravida/intake/internal/triage"
)

// Store holds triage records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	order   []string                  // record IDs in append order
	records map[string]*triage.Record // record ID -> record
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[string]*triage.Record),
	}
}

// Append inserts a new record. Existing IDs are never overwritten.
func (s *Store) Append(_ context.Context, r *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return triage.ErrDuplicateID
	}
	s.records[r.ID] = r.Clone()
	s.order = append(s.order, r.ID)
	return nil
}

// Get retrieves a record by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// GetLatestByCard returns the last-appended record for the given card
// number. Returns a copy.
func (s *Store) GetLatestByCard(_ context.Context, card string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.records[s.order[i]]
		if r.Subject.CardNumber == card {
			return r.Clone(), true, nil
		}
	}
	return nil, false, nil
}

// Update applies mutate to the stored record under the write lock and
// commits the result. Returns a copy of the committed record.
func (s *Store) Update(_ context.Context, id string, mutate func(*triage.Record) error) (*triage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	next := r.Clone()
	if err := mutate(next); err != nil {
		return nil, true, err
	}
	s.records[id] = next
	return next.Clone(), true, nil
}

// List returns copies of all records in append order.
func (s *Store) List(_ context.Context) ([]*triage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}
