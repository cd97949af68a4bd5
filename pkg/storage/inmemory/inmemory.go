// Package inmemory provides a map-backed storage driver for tests and
// ephemeral sessions.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/recall/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards entries, byTS and nextID
	mu sync.RWMutex

	// entries is keyed by id
	entries map[int64]*storage.Entry

	// byTS maps a timestamp to its entry id
	byTS map[int64]int64

	nextID int64
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		entries: make(map[int64]*storage.Entry),
		byTS:    make(map[int64]int64),
	}
}

// Insert stores a copy of e unless its timestamp already exists.
func (d *Driver) Insert(_ context.Context, e *storage.Entry) (int64, bool, error) {
	if e == nil {
		return 0, false, errors.New("cannot store nil entry")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byTS[e.Timestamp]; ok {
		return 0, false, nil
	}

	d.nextID++
	stored := clone(e)
	stored.ID = d.nextID
	d.entries[stored.ID] = stored
	d.byTS[stored.Timestamp] = stored.ID
	return stored.ID, true, nil
}

// Entries returns entries with embeddings, newest first.
func (d *Driver) Entries(_ context.Context) ([]*storage.Entry, error) {
	return d.collect(func(e *storage.Entry) bool { return len(e.Embedding) > 0 }), nil
}

// Timestamps returns every timestamp, newest first.
func (d *Driver) Timestamps(_ context.Context) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]int64, 0, len(d.byTS))
	for ts := range d.byTS {
		out = append(out, ts)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out, nil
}

// Get retrieves an entry by id.
func (d *Driver) Get(_ context.Context, id int64) (*storage.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return clone(e), nil
}

// GetByTimestamp retrieves the entry captured at ts.
func (d *Driver) GetByTimestamp(_ context.Context, ts int64) (*storage.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byTS[ts]
	if !ok {
		return nil, storage.NotFoundError{Timestamp: ts}
	}
	return clone(d.entries[id]), nil
}

// Page returns a window of entries, newest first.
func (d *Driver) Page(_ context.Context, offset, limit int) ([]*storage.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	all := d.collect(nil)
	offset = max(offset, 0)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset : offset+min(limit, len(all)-offset)], nil
}

// Count returns the number of entries.
func (d *Driver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries), nil
}

// Between returns entries in [from, to), newest first.
func (d *Driver) Between(_ context.Context, from, to int64) ([]*storage.Entry, error) {
	return d.collect(func(e *storage.Entry) bool {
		return e.Timestamp >= from && e.Timestamp < to
	}), nil
}

// Update replaces the text and embedding of one entry.
func (d *Driver) Update(_ context.Context, id int64, text string, embedding []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}
	e.Text = text
	e.Embedding = slices.Clone(embedding)
	return nil
}

// UpdateBatch applies the revisions whose entry exists and returns the ids
// of the rest.
func (d *Driver) UpdateBatch(_ context.Context, revs []storage.Revision) ([]int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var missing []int64
	for _, r := range revs {
		e, ok := d.entries[r.ID]
		if !ok {
			missing = append(missing, r.ID)
			continue
		}
		e.Text = r.Text
		e.Embedding = slices.Clone(r.Embedding)
	}
	return missing, nil
}

// Stats summarizes the store.
func (d *Driver) Stats(_ context.Context) (*storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := &storage.Stats{Count: len(d.entries)}
	apps := map[string]struct{}{}
	titles := map[string]struct{}{}
	for _, e := range d.entries {
		if st.FirstTimestamp == 0 || e.Timestamp < st.FirstTimestamp {
			st.FirstTimestamp = e.Timestamp
		}
		if e.Timestamp > st.LastTimestamp {
			st.LastTimestamp = e.Timestamp
		}
		apps[e.App] = struct{}{}
		titles[e.Title] = struct{}{}
	}
	st.Apps = len(apps)
	st.Titles = len(titles)
	return st, nil
}

// Activities aggregates entries per application, busiest first.
func (d *Driver) Activities(_ context.Context, f storage.ActivityFilter) ([]storage.AppActivity, error) {
	title := strings.ToLower(f.Title)
	entries := d.collect(func(e *storage.Entry) bool {
		switch {
		case f.Since != 0 && e.Timestamp < f.Since:
			return false
		case f.Until != 0 && e.Timestamp >= f.Until:
			return false
		case f.App != "" && e.App != f.App:
			return false
		case title != "" && !strings.Contains(strings.ToLower(e.Title), title):
			return false
		}
		return true
	})

	byApp := map[string]*storage.AppActivity{}
	for _, e := range entries {
		a, ok := byApp[e.App]
		if !ok {
			a = &storage.AppActivity{App: e.App, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
			byApp[e.App] = a
		}
		a.Count++
		a.FirstSeen = min(a.FirstSeen, e.Timestamp)
		a.LastSeen = max(a.LastSeen, e.Timestamp)
	}

	out := make([]storage.AppActivity, 0, len(byApp))
	for _, a := range byApp {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b storage.AppActivity) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.App, b.App)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}

// collect returns copies of the entries matching keep, newest first.
func (d *Driver) collect(keep func(*storage.Entry) bool) []*storage.Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Entry
	for _, e := range d.entries {
		if keep == nil || keep(e) {
			out = append(out, clone(e))
		}
	}
	slices.SortFunc(out, func(a, b *storage.Entry) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

func clone(e *storage.Entry) *storage.Entry {
	c := *e
	c.Embedding = slices.Clone(e.Embedding)
	return &c
}

var _ storage.Driver = (*Driver)(nil)
