package triage

import (
	"context"
	"errors"
)

// ErrDuplicateID is returned by Append when a record with the same ID
// already exists. Records are never overwritten through Append.
var ErrDuplicateID = errors.New("triage: record id already exists")

// Store is the persistence interface for triage records. Records are kept
// in append order, which is also chronological; "latest" lookups rely on
// that rather than on the timestamp field.
//
// Lookups return ok=false for a miss, reserving the error for persistence
// failures. Derived flags are never stored; callers recompute them from
// Vitals on every read.
type Store interface {
	// Append inserts a new record. It fails with ErrDuplicateID if the ID
	// is taken and never partially writes.
	Append(ctx context.Context, r *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, bool, error)

	// GetLatestByCard returns the last-appended record whose subject holds
	// the given insurance card number.
	GetLatestByCard(ctx context.Context, card string) (*Record, bool, error)

	// Update applies mutate to the current committed state of the record
	// and writes the whole record back. The read-modify-write is atomic
	// with respect to a single caller; concurrent callers racing on the
	// same ID are last-write-wins. If mutate returns an error nothing is
	// written. ok=false means the record does not exist.
	Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, bool, error)

	// List returns all records in append order.
	List(ctx context.Context) ([]*Record, error)
}
