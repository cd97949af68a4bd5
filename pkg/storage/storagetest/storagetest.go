// Package storagetest holds the behavioural specs every storage.Driver must
// pass. Driver packages call DescribeDriver from their own suites.
package storagetest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/storage"
)

// NewEntry builds an entry with a small embedding.
func NewEntry(ts int64, app, title, text string) *storage.Entry {
	return &storage.Entry{
		App:       app,
		Title:     title,
		Text:      text,
		Timestamp: ts,
		Embedding: []float32{float32(ts), 1, 0.5},
	}
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
				driver = nil
			}
		})

		insert := func(e *storage.Entry) int64 {
			id, ok, err := driver.Insert(ctx, e)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			return id
		}

		Describe("Insert", func() {
			It("assigns an id and round-trips the entry", func() {
				id := insert(NewEntry(100, "Code", "main.go", "func main"))
				Expect(id).To(BeNumerically(">", 0))

				got, err := driver.Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(id))
				Expect(got.App).To(Equal("Code"))
				Expect(got.Title).To(Equal("main.go"))
				Expect(got.Text).To(Equal("func main"))
				Expect(got.Timestamp).To(Equal(int64(100)))
				Expect(got.Embedding).To(Equal([]float32{100, 1, 0.5}))
			})

			It("ignores a duplicate timestamp", func() {
				insert(NewEntry(100, "Code", "a", "first"))

				id, ok, err := driver.Insert(ctx, NewEntry(100, "Code", "b", "second"))
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
				Expect(id).To(BeZero())

				got, err := driver.GetByTimestamp(ctx, 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Text).To(Equal("first"))

				n, err := driver.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})

			It("rejects nil entries", func() {
				_, _, err := driver.Insert(ctx, nil)
				Expect(err).To(HaveOccurred())
			})
		})

		Describe("Entries", func() {
			It("returns embedded entries newest first", func() {
				insert(NewEntry(1, "A", "", "one"))
				insert(NewEntry(3, "A", "", "three"))
				insert(NewEntry(2, "B", "", "two"))

				entries, err := driver.Entries(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(3))
				Expect(entries[0].Timestamp).To(Equal(int64(3)))
				Expect(entries[2].Timestamp).To(Equal(int64(1)))
			})

			It("skips entries without an embedding", func() {
				insert(NewEntry(1, "A", "", "one"))
				insert(&storage.Entry{App: "A", Text: "bare", Timestamp: 2})

				entries, err := driver.Entries(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].Timestamp).To(Equal(int64(1)))

				n, err := driver.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(2))
			})
		})

		Describe("lookups", func() {
			BeforeEach(func() {
				for _, ts := range []int64{10, 20, 30, 40} {
					insert(NewEntry(ts, "App", "", "entry"))
				}
			})

			It("lists timestamps newest first", func() {
				ts, err := driver.Timestamps(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(ts).To(Equal([]int64{40, 30, 20, 10}))
			})

			It("pages newest first", func() {
				page, err := driver.Page(ctx, 1, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(HaveLen(2))
				Expect(page[0].Timestamp).To(Equal(int64(30)))
				Expect(page[1].Timestamp).To(Equal(int64(20)))

				page, err = driver.Page(ctx, 10, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(BeEmpty())
			})

			It("selects a half-open timestamp range", func() {
				got, err := driver.Between(ctx, 20, 40)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))
				Expect(got[0].Timestamp).To(Equal(int64(30)))
				Expect(got[1].Timestamp).To(Equal(int64(20)))
			})

			It("reports missing entries as not found", func() {
				_, err := driver.Get(ctx, 9999)
				Expect(storage.IsNotFound(err)).To(BeTrue())

				_, err = driver.GetByTimestamp(ctx, 55)
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("Update", func() {
			It("replaces text and embedding", func() {
				id := insert(NewEntry(5, "A", "", "old"))
				Expect(driver.Update(ctx, id, "new", []float32{0, 1})).To(Succeed())

				got, err := driver.Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Text).To(Equal("new"))
				Expect(got.Embedding).To(Equal([]float32{0, 1}))
			})

			It("fails for unknown ids", func() {
				err := driver.Update(ctx, 404, "x", []float32{1})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("UpdateBatch", func() {
			It("applies every revision", func() {
				a := insert(NewEntry(1, "A", "", "a"))
				b := insert(NewEntry(2, "A", "", "b"))

				missing, err := driver.UpdateBatch(ctx, []storage.Revision{
					{ID: a, Text: "a2", Embedding: []float32{1}},
					{ID: b, Text: "b2", Embedding: []float32{2}},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(missing).To(BeEmpty())

				got, err := driver.Get(ctx, b)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Text).To(Equal("b2"))
			})

			It("skips revisions of deleted entries and applies the rest", func() {
				a := insert(NewEntry(1, "A", "", "a"))
				b := insert(NewEntry(2, "A", "", "b"))

				missing, err := driver.UpdateBatch(ctx, []storage.Revision{
					{ID: a, Text: "a2", Embedding: []float32{1}},
					{ID: b + 1000, Text: "ghost", Embedding: []float32{2}},
					{ID: b, Text: "b2", Embedding: []float32{3}},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(missing).To(Equal([]int64{b + 1000}))

				got, err := driver.Get(ctx, a)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Text).To(Equal("a2"))

				got, err = driver.Get(ctx, b)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Text).To(Equal("b2"))
				Expect(got.Embedding).To(Equal([]float32{3}))
			})

			It("accepts an empty batch", func() {
				missing, err := driver.UpdateBatch(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(missing).To(BeEmpty())
			})
		})

		Describe("Stats and Activities", func() {
			BeforeEach(func() {
				insert(NewEntry(100, "Code", "main.go", "x"))
				insert(NewEntry(200, "Code", "util.go", "x"))
				insert(NewEntry(300, "Browser", "Go Docs", "x"))
			})

			It("summarizes the store", func() {
				st, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(st.Count).To(Equal(3))
				Expect(st.FirstTimestamp).To(Equal(int64(100)))
				Expect(st.LastTimestamp).To(Equal(int64(300)))
				Expect(st.Apps).To(Equal(2))
				Expect(st.Titles).To(Equal(3))
			})

			It("groups by application, busiest first", func() {
				acts, err := driver.Activities(ctx, storage.ActivityFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(acts).To(HaveLen(2))
				Expect(acts[0]).To(Equal(storage.AppActivity{App: "Code", Count: 2, FirstSeen: 100, LastSeen: 200}))
				Expect(acts[1].App).To(Equal("Browser"))
			})

			It("filters by time, app and title keyword", func() {
				acts, err := driver.Activities(ctx, storage.ActivityFilter{Since: 150})
				Expect(err).NotTo(HaveOccurred())
				Expect(acts).To(HaveLen(2))
				Expect(acts[0].Count).To(Equal(1))

				acts, err = driver.Activities(ctx, storage.ActivityFilter{Title: "go docs"})
				Expect(err).NotTo(HaveOccurred())
				Expect(acts).To(HaveLen(1))
				Expect(acts[0].App).To(Equal("Browser"))

				acts, err = driver.Activities(ctx, storage.ActivityFilter{App: "Code", Limit: 1})
				Expect(err).NotTo(HaveOccurred())
				Expect(acts).To(HaveLen(1))
				Expect(acts[0].Count).To(Equal(2))
			})

			It("returns zero stats for an empty store", func() {
				empty := newDriver()
				defer empty.Close()

				st, err := empty.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(st.Count).To(BeZero())
				Expect(st.FirstTimestamp).To(BeZero())
			})
		})
	})
}
