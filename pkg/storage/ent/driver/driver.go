// Package entdriver implements storage.Driver over database/sql, using ent's
// dialect-aware SQL builder so that SQLite and PostgreSQL share one code path.
package entdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vector"
)

const table = "entries"

var entryColumns = []string{"id", "app", "title", "text", "timestamp", "embedding", "embedding_width"}

// EntDriver provides entry storage on a *sql.DB for a given ent dialect.
type EntDriver struct {
	DB      *sql.DB
	Dialect string
	Logger  *slog.Logger
}

// New wraps db and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, d string, l *slog.Logger) (*EntDriver, error) {
	drv := &EntDriver{DB: db, Dialect: d, Logger: logger.OrNop(l)}
	if err := drv.migrate(ctx); err != nil {
		return nil, err
	}
	return drv, nil
}

func (d *EntDriver) migrate(ctx context.Context) error {
	var stmts []string
	switch d.Dialect {
	case dialect.SQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS entries (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				app TEXT,
				title TEXT,
				text TEXT,
				timestamp INTEGER UNIQUE,
				embedding BLOB,
				embedding_width INTEGER NOT NULL DEFAULT 4
			)`,
			`CREATE INDEX IF NOT EXISTS idx_timestamp ON entries (timestamp)`,
		}
	case dialect.Postgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS entries (
				id BIGSERIAL PRIMARY KEY,
				app TEXT,
				title TEXT,
				text TEXT,
				timestamp BIGINT UNIQUE,
				embedding BYTEA,
				embedding_width INTEGER NOT NULL DEFAULT 4
			)`,
			`CREATE INDEX IF NOT EXISTS idx_timestamp ON entries (timestamp)`,
			`ALTER TABLE entries ADD COLUMN IF NOT EXISTS embedding_width INTEGER NOT NULL DEFAULT 4`,
		}
	default:
		return fmt.Errorf("unsupported dialect: %s", d.Dialect)
	}

	for _, stmt := range stmts {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if d.Dialect == dialect.SQLite {
		return d.addSQLiteWidthColumn(ctx)
	}
	return nil
}

// addSQLiteWidthColumn upgrades databases created before embedding_width
// existed. SQLite has no ADD COLUMN IF NOT EXISTS.
func (d *EntDriver) addSQLiteWidthColumn(ctx context.Context) error {
	rows, err := d.DB.QueryContext(ctx, `PRAGMA table_info(entries)`)
	if err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scanning table info: %w", err)
		}
		if name == "embedding_width" {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	rows.Close()

	if found {
		return nil
	}

	_, err = d.DB.ExecContext(ctx, `ALTER TABLE entries ADD COLUMN embedding_width INTEGER NOT NULL DEFAULT 4`)
	if err != nil {
		return fmt.Errorf("adding embedding_width: %w", err)
	}
	return nil
}

func (d *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect)
}

func (d *EntDriver) selectEntries() *entsql.Selector {
	b := d.builder()
	return b.Select(entryColumns...).From(b.Table(table))
}

// Insert stores e, doing nothing when its timestamp already exists.
func (d *EntDriver) Insert(ctx context.Context, e *storage.Entry) (int64, bool, error) {
	if e == nil {
		return 0, false, errors.New("cannot store nil entry")
	}

	insert, args := d.builder().Insert(table).
		Columns("app", "title", "text", "timestamp", "embedding", "embedding_width").
		Values(e.App, e.Title, e.Text, e.Timestamp, vector.Encode(e.Embedding), vector.Width32).
		OnConflict(entsql.ConflictColumns("timestamp"), entsql.DoNothing()).
		Query()

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, false, fmt.Errorf("inserting entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, tx.Commit()
	}

	lookup, largs := d.builder().Select("id").From(d.builder().Table(table)).
		Where(entsql.EQ("timestamp", e.Timestamp)).
		Query()

	var id int64
	if err := tx.QueryRowContext(ctx, lookup, largs...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("reading inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("committing transaction: %w", err)
	}
	return id, true, nil
}

// Entries returns all entries with a usable embedding, newest first.
func (d *EntDriver) Entries(ctx context.Context) ([]*storage.Entry, error) {
	return d.queryEntries(ctx, d.selectEntries().OrderBy(entsql.Desc("timestamp")), true)
}

// Timestamps returns every timestamp, newest first.
func (d *EntDriver) Timestamps(ctx context.Context) ([]int64, error) {
	b := d.builder()
	query, args := b.Select("timestamp").From(b.Table(table)).
		OrderBy(entsql.Desc("timestamp")).
		Query()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scanning timestamp: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Get retrieves an entry by id.
func (d *EntDriver) Get(ctx context.Context, id int64) (*storage.Entry, error) {
	entries, err := d.queryEntries(ctx, d.selectEntries().Where(entsql.EQ("id", id)), false)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return entries[0], nil
}

// GetByTimestamp retrieves the entry captured at ts.
func (d *EntDriver) GetByTimestamp(ctx context.Context, ts int64) (*storage.Entry, error) {
	entries, err := d.queryEntries(ctx, d.selectEntries().Where(entsql.EQ("timestamp", ts)), false)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, storage.NotFoundError{Timestamp: ts}
	}
	return entries[0], nil
}

// Page returns a window of entries, newest first.
func (d *EntDriver) Page(ctx context.Context, offset, limit int) ([]*storage.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s := d.selectEntries().OrderBy(entsql.Desc("timestamp")).Limit(limit).Offset(max(offset, 0))
	return d.queryEntries(ctx, s, false)
}

// Count returns the number of entries.
func (d *EntDriver) Count(ctx context.Context) (int, error) {
	b := d.builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(table)).Query()

	var n int
	if err := d.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Between returns entries in [from, to), newest first.
func (d *EntDriver) Between(ctx context.Context, from, to int64) ([]*storage.Entry, error) {
	s := d.selectEntries().
		Where(entsql.And(entsql.GTE("timestamp", from), entsql.LT("timestamp", to))).
		OrderBy(entsql.Desc("timestamp"))
	return d.queryEntries(ctx, s, false)
}

// Update replaces the text and embedding of one entry.
func (d *EntDriver) Update(ctx context.Context, id int64, text string, embedding []float32) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		found, err := d.update(ctx, tx, storage.Revision{ID: id, Text: text, Embedding: embedding})
		if err != nil {
			return err
		}
		if !found {
			return storage.NotFoundError{ID: id}
		}
		return nil
	})
}

// UpdateBatch applies the revisions in one transaction. Revisions whose
// entry no longer exists are skipped and their ids returned.
func (d *EntDriver) UpdateBatch(ctx context.Context, revs []storage.Revision) ([]int64, error) {
	if len(revs) == 0 {
		return nil, nil
	}

	var missing []int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		missing = missing[:0]
		for _, r := range revs {
			found, err := d.update(ctx, tx, r)
			if err != nil {
				return err
			}
			if !found {
				missing = append(missing, r.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return missing, nil
}

// update writes one revision and reports whether its row exists.
func (d *EntDriver) update(ctx context.Context, tx *sql.Tx, r storage.Revision) (bool, error) {
	query, args := d.builder().Update(table).
		Set("text", r.Text).
		Set("embedding", vector.Encode(r.Embedding)).
		Set("embedding_width", vector.Width32).
		Where(entsql.EQ("id", r.ID)).
		Query()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating entry %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

func (d *EntDriver) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Stats summarizes the table.
func (d *EntDriver) Stats(ctx context.Context) (*storage.Stats, error) {
	b := d.builder()
	query, args := b.Select(
		entsql.Count("*"),
		entsql.Min("timestamp"),
		entsql.Max("timestamp"),
		entsql.Count(entsql.Distinct("app")),
		entsql.Count(entsql.Distinct("title")),
	).From(b.Table(table)).Query()

	var (
		st          storage.Stats
		first, last sql.NullInt64
	)
	err := d.DB.QueryRowContext(ctx, query, args...).Scan(&st.Count, &first, &last, &st.Apps, &st.Titles)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	st.FirstTimestamp = first.Int64
	st.LastTimestamp = last.Int64
	return &st, nil
}

// Activities aggregates entries per application.
func (d *EntDriver) Activities(ctx context.Context, f storage.ActivityFilter) ([]storage.AppActivity, error) {
	b := d.builder()
	s := b.Select(
		"app",
		entsql.As(entsql.Count("*"), "entry_count"),
		entsql.As(entsql.Min("timestamp"), "first_seen"),
		entsql.As(entsql.Max("timestamp"), "last_seen"),
	).From(b.Table(table))

	if f.Since != 0 {
		s.Where(entsql.GTE("timestamp", f.Since))
	}
	if f.Until != 0 {
		s.Where(entsql.LT("timestamp", f.Until))
	}
	if f.App != "" {
		s.Where(entsql.EQ("app", f.App))
	}
	if f.Title != "" {
		s.Where(entsql.ContainsFold("title", f.Title))
	}

	s.GroupBy("app").OrderBy(entsql.Desc("entry_count"), "app")
	if f.Limit > 0 {
		s.Limit(f.Limit)
	}

	query, args := s.Query()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var out []storage.AppActivity
	for rows.Next() {
		var (
			a   storage.AppActivity
			app sql.NullString
		)
		if err := rows.Scan(&app, &a.Count, &a.FirstSeen, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.App = app.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the database.
func (d *EntDriver) Close() error {
	return d.DB.Close()
}

// queryEntries runs s and scans entries. When requireEmbedding is set,
// rows whose embedding is empty or undecodable are skipped.
func (d *EntDriver) queryEntries(ctx context.Context, s *entsql.Selector, requireEmbedding bool) ([]*storage.Entry, error) {
	query, args := s.Query()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var (
		out     []*storage.Entry
		skipped int
	)
	for rows.Next() {
		var (
			e                storage.Entry
			app, title, text sql.NullString
			ts               sql.NullInt64
			blob             []byte
			width            sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &app, &title, &text, &ts, &blob, &width); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.App, e.Title, e.Text, e.Timestamp = app.String, title.String, text.String, ts.Int64

		if len(blob) > 0 {
			emb, err := vector.Decode(blob, int(width.Int64))
			if err == nil {
				e.Embedding = emb
			} else {
				d.Logger.Debug("undecodable embedding", "entry_id", e.ID, "error", err)
			}
		}

		if requireEmbedding && len(e.Embedding) == 0 {
			skipped++
			continue
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	if skipped > 0 {
		d.Logger.Debug("skipped entries without usable embeddings", "count", skipped)
	}
	return out, nil
}

var _ storage.Driver = (*EntDriver)(nil)
