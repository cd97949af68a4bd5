// Package storage defines the entry store used by capture, search and
// reprocessing.
package storage

import "context"

// Driver persists entries keyed by a unique timestamp.
type Driver interface {
	// Insert stores e unless an entry with the same timestamp exists.
	// It returns the new id and true, or 0 and false on a duplicate.
	Insert(ctx context.Context, e *Entry) (int64, bool, error)

	// Entries returns every entry with a decodable, non-empty embedding,
	// newest first.
	Entries(ctx context.Context) ([]*Entry, error)

	// Timestamps returns all timestamps, newest first.
	Timestamps(ctx context.Context) ([]int64, error)

	// Get retrieves an entry by id.
	Get(ctx context.Context, id int64) (*Entry, error)

	// GetByTimestamp retrieves the entry captured at ts.
	GetByTimestamp(ctx context.Context, ts int64) (*Entry, error)

	// Page returns up to limit entries newest first, skipping offset.
	Page(ctx context.Context, offset, limit int) ([]*Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Between returns entries with from <= timestamp < to, newest first.
	Between(ctx context.Context, from, to int64) ([]*Entry, error)

	// Update replaces the text and embedding of entry id.
	Update(ctx context.Context, id int64, text string, embedding []float32) error

	// UpdateBatch applies the revisions in a single transaction and returns
	// the ids of revisions whose entry no longer exists. Those are skipped;
	// on error nothing is applied.
	UpdateBatch(ctx context.Context, revs []Revision) (missing []int64, err error)

	// Stats summarizes the store.
	Stats(ctx context.Context) (*Stats, error)

	// Activities groups matching entries by application, busiest first.
	Activities(ctx context.Context, f ActivityFilter) ([]AppActivity, error)

	// Close releases the underlying connection.
	Close() error
}
