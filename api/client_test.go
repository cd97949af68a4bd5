package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Client", func() {
	var (
		ts       *httptest.Server
		client   *Client
		svc      *recall.Service
		embedder *testutils.MockEmbedder
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store := inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder()

		engine, err := reprocess.NewEngine(reprocess.Config{
			Store:   store,
			Indexer: embeddings.NewIndexer(embedder),
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = recall.NewService(recall.Config{
			Store:      store,
			Controller: recording.NewController(),
			Search:     search.NewEngine(embedder, store, nil),
			Reprocess:  engine,
			Location:   time.UTC,
		})
		Expect(err).NotTo(HaveOccurred())

		server := NewServer(Config{PageSize: 5}, svc, nil)
		ts = httptest.NewServer(adaptor.FiberApp(server.app))
		DeferCleanup(ts.Close)

		client, err = NewClient(ts.URL + "/")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects targets without a scheme", func() {
		_, err := NewClient("localhost")
		Expect(err).To(HaveOccurred())
	})

	It("searches", func() {
		embedder.Embeddings["editor"] = []float32{1, 0}
		_, ok := svc.InsertEntry(ctx, "vim main.go", 100, []float32{1, 0}, "Terminal", "vim")
		Expect(ok).To(BeTrue())

		res, err := client.Search(ctx, "editor", 1, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Query).To(Equal("editor"))
		Expect(res.PageSize).To(Equal(5))
		Expect(res.Results).To(HaveLen(1))
		Expect(res.Results[0].Entry.Text).To(Equal("vim main.go"))
	})

	It("fetches one entry and reports missing ones", func() {
		_, ok := svc.InsertEntry(ctx, "hello", 42, []float32{1, 0}, "Notes", "")
		Expect(ok).To(BeTrue())

		entry, err := client.Entry(ctx, 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Text).To(Equal("hello"))

		_, err = client.Entry(ctx, 43)
		var se *StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.StatusCode).To(Equal(fiber.StatusNotFound))
	})

	It("pauses and resumes recording", func() {
		paused, err := client.Pause(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(paused.Changed).To(BeTrue())
		Expect(paused.State.IsPaused).To(BeTrue())

		again, err := client.Pause(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Changed).To(BeFalse())

		status, err := client.Status(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.IsPaused).To(BeTrue())

		resumed, err := client.Resume(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(resumed.State.IsRecording).To(BeTrue())
	})

	It("reads recording stats", func() {
		_, ok := svc.InsertEntry(ctx, "x", time.Now().Unix(), []float32{1}, "A", "")
		Expect(ok).To(BeTrue())

		stats, err := client.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.ScreenshotCount).To(Equal(1))
		Expect(stats.TodayCount).To(Equal(1))
	})

	It("runs reprocessing remotely", func() {
		embedder.Embeddings["plain text from the screen"] = []float32{0, 1}
		_, ok := svc.InsertEntry(ctx, "plain text from the screen", 7, []float32{1, 0}, "A", "")
		Expect(ok).To(BeTrue())

		res, err := client.Reprocess(ctx, reprocess.Options{DryRun: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.DryRun).To(BeTrue())
		Expect(res.Candidates).To(Equal(1))
	})

	It("surfaces the server error message", func() {
		_, err := client.Search(ctx, "", 0, 0)
		Expect(err).To(MatchError(ContainSubstring("query parameter is required")))
	})
})
