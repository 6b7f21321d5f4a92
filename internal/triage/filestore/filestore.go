// Package filestore provides a file-backed implementation of triage.Store.
//
// The whole collection is kept in memory and rewritten to a single JSON
// snapshot on every mutation. Write cost is bounded by collection size,
// an accepted trade-off for simplicity over throughput at front-desk
// volumes. Unknown fields in an existing snapshot are dropped on the next
// rewrite but never cause a load failure.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seguravida/intake/internal/triage"
)

// Store persists triage records as a JSON array snapshot on disk.
type Store struct {
	path string

	mu      sync.RWMutex
	order   []string
	records map[string]*triage.Record
}

// Open loads the snapshot at path, creating parent directories as needed.
// A missing file is an empty collection, not an error.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*triage.Record),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read snapshot: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var recs []*triage.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("filestore: decode snapshot: %w", err)
	}
	for _, r := range recs {
		if r.ID == "" {
			// quarantine malformed entries instead of propagating them
			continue
		}
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s, nil
}

// flush rewrites the entire snapshot. Callers hold the write lock.
// The write goes through a temp file and rename so a crash mid-write
// leaves the previous snapshot intact.
func (s *Store) flush() error {
	recs := make([]*triage.Record, 0, len(s.order))
	for _, id := range s.order {
		recs = append(recs, s.records[id])
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("filestore: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("filestore: commit snapshot: %w", err)
	}
	return nil
}

// Append inserts a new record and durably persists the collection.
func (s *Store) Append(_ context.Context, r *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return triage.ErrDuplicateID
	}
	s.records[r.ID] = r.Clone()
	s.order = append(s.order, r.ID)
	if err := s.flush(); err != nil {
		// no partial write: roll the in-memory state back
		delete(s.records, r.ID)
		s.order = s.order[:len(s.order)-1]
		return err
	}
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

// Update applies mutate to the committed record and rewrites the
// snapshot. If the flush fails the previous state is kept.
func (s *Store) Update(_ context.Context, id string, mutate func(*triage.Record) error) (*triage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	next := prev.Clone()
	if err := mutate(next); err != nil {
		return nil, true, err
	}
	s.records[id] = next
	if err := s.flush(); err != nil {
		s.records[id] = prev
		return nil, true, err
	}
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
