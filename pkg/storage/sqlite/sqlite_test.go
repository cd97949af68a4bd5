package sqlite_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	"github.com/papercomputeco/recall/pkg/storage/storagetest"
	"github.com/papercomputeco/recall/pkg/vector"
)

func TestSQLite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SQLite Storage Suite")
}

var _ = storagetest.DescribeDriver("sqlite", func() storage.Driver {
	d, err := sqlite.NewDriver(context.Background(), ":memory:", nil)
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = Describe("NewDriver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates the database file", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "recall.db")

		d, err := sqlite.NewDriver(ctx, dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps entries across reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "recall.db")

		d, err := sqlite.NewDriver(ctx, dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
		_, _, err = d.Insert(ctx, storagetest.NewEntry(7, "Code", "", "persisted"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Close()).To(Succeed())

		d, err = sqlite.NewDriver(ctx, dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		got, err := d.GetByTimestamp(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Text).To(Equal("persisted"))
	})

	It("upgrades tables created without an embedding width", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "legacy.db")

		raw, err := sql.Open("sqlite3", dbPath)
		Expect(err).NotTo(HaveOccurred())
		_, err = raw.Exec(`CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app TEXT, title TEXT, text TEXT,
			timestamp INTEGER UNIQUE, embedding BLOB
		)`)
		Expect(err).NotTo(HaveOccurred())
		_, err = raw.Exec(`INSERT INTO entries (app, title, text, timestamp, embedding) VALUES (?, ?, ?, ?, ?)`,
			"Term", nil, "legacy", 1, vector.Encode([]float32{3, 4}))
		Expect(err).NotTo(HaveOccurred())
		Expect(raw.Close()).To(Succeed())

		d, err := sqlite.NewDriver(ctx, dbPath, nil)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		entries, err := d.Entries(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Title).To(BeEmpty())
		Expect(entries[0].Embedding).To(Equal([]float32{3, 4}))
	})

	It("skips rows with undecodable embeddings", func() {
		d, err := sqlite.NewDriver(ctx, ":memory:", nil)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		_, _, err = d.Insert(ctx, storagetest.NewEntry(1, "A", "", "good"))
		Expect(err).NotTo(HaveOccurred())
		_, err = d.DB.ExecContext(ctx, `INSERT INTO entries (app, text, timestamp, embedding) VALUES ('A', 'bad', 2, X'010203')`)
		Expect(err).NotTo(HaveOccurred())

		entries, err := d.Entries(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Text).To(Equal("good"))
	})
})
