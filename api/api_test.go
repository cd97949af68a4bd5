package api

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/recall/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		server   *Server
		store    *inmemory.Driver
		ctrl     *recording.Controller
		embedder *testutils.MockEmbedder
		assets   *screen.AssetStore
		svc      *recall.Service
		ctx      context.Context
	)

	do := func(method, target, body string) *http.Response {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, target, r)
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	insert := func(ts int64, app, text string, emb []float32) {
		_, ok := svc.InsertEntry(ctx, text, ts, emb, app, "title")
		Expect(ok).To(BeTrue())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		ctrl = recording.NewController()
		embedder = testutils.NewMockEmbedder()

		var err error
		assets, err = screen.NewAssetStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		engine, err := reprocess.NewEngine(reprocess.Config{
			Store:   store,
			Indexer: embeddings.NewIndexer(embedder),
			Assets:  assets,
		})
		Expect(err).NotTo(HaveOccurred())

		svc, err = recall.NewService(recall.Config{
			Store:      store,
			Controller: ctrl,
			Search:     search.NewEngine(embedder, store, nil),
			Reprocess:  engine,
			Location:   time.UTC,
		})
		Expect(err).NotTo(HaveOccurred())

		server = NewServer(Config{
			ListenAddr: ":0",
			PageSize:   2,
			Assets:     assets,
			Captured:   func() int64 { return 7 },
		}, svc, nil)
	})

	It("answers 500 when a handler panics", func() {
		server.app.Get("/panic", func(*fiber.Ctx) error { panic("handler bug") })

		resp := do(http.MethodGet, "/panic", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))

		resp = do(http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})

	It("answers ping", func() {
		resp := do(http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
	})

	Describe("GET /v1/search", func() {
		It("requires a query", func() {
			resp := do(http.MethodGet, "/v1/search", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(ContainSubstring("query"))
		})

		It("rejects non-numeric paging", func() {
			resp := do(http.MethodGet, "/v1/search?query=x&page=two", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns ranked matches with the configured page size", func() {
			embedder.Embeddings["terminal"] = []float32{1, 0}
			insert(10, "Terminal", "ls -la", []float32{1, 0})
			insert(20, "Mail", "inbox", []float32{0, 1})
			insert(30, "Terminal", "git status", []float32{0.9, 0.1})

			resp := do(http.MethodGet, "/v1/search?query=terminal", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res search.Result
			decode(resp, &res)
			Expect(res.PageSize).To(Equal(2))
			Expect(res.TotalMatches).To(Equal(3))
			Expect(res.TotalPages).To(Equal(2))
			Expect(res.Results[0].Entry.Text).To(Equal("ls -la"))
			Expect(res.Results[1].Entry.Text).To(Equal("git status"))
		})

		It("flags an empty history", func() {
			resp := do(http.MethodGet, "/v1/search?query=anything", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res search.Result
			decode(resp, &res)
			Expect(res.NoMatches).To(BeTrue())
		})

		It("returns an empty page for an out-of-range page", func() {
			embedder.Embeddings["terminal"] = []float32{1, 0}
			insert(10, "Terminal", "ls -la", []float32{1, 0})

			resp := do(http.MethodGet, "/v1/search?query=terminal&page=9223372036854775807&page_size=10", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res search.Result
			decode(resp, &res)
			Expect(res.Results).To(BeEmpty())
			Expect(res.TotalMatches).To(Equal(1))
		})

		It("returns 502 when the query cannot be embedded", func() {
			embedder.FailOn = "broken"
			resp := do(http.MethodGet, "/v1/search?query=broken", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
		})
	})

	Describe("browsing", func() {
		BeforeEach(func() {
			day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Unix()
			day2 := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC).Unix()
			insert(day1, "Code", "main.go", []float32{1, 0})
			insert(day2, "Code", "api.go", []float32{1, 0})
			insert(day2+60, "Mail", "inbox", []float32{0, 1})
		})

		It("pages the timeline", func() {
			resp := do(http.MethodGet, "/v1/entries?page=2", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var t recall.Timeline
			decode(resp, &t)
			Expect(t.Total).To(Equal(3))
			Expect(t.Entries).To(HaveLen(1))
			Expect(t.Entries[0].Text).To(Equal("main.go"))
		})

		It("returns an empty timeline page past the end", func() {
			resp := do(http.MethodGet, "/v1/entries?page=9223372036854775807", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var t recall.Timeline
			decode(resp, &t)
			Expect(t.Total).To(Equal(3))
			Expect(t.Entries).To(BeEmpty())
		})

		It("gets one entry by timestamp", func() {
			ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Unix()
			resp := do(http.MethodGet, "/v1/entries/"+strconv.FormatInt(ts, 10), "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var e storage.Entry
			decode(resp, &e)
			Expect(e.Text).To(Equal("main.go"))
		})

		It("returns 404 for an unknown timestamp", func() {
			Expect(do(http.MethodGet, "/v1/entries/1", "").StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 400 for a malformed timestamp", func() {
			Expect(do(http.MethodGet, "/v1/entries/yesterday", "").StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("lists timestamps newest first", func() {
			var body TimestampsResponse
			decode(do(http.MethodGet, "/v1/timestamps", ""), &body)
			Expect(body.Timestamps).To(HaveLen(3))
			Expect(body.Timestamps[0]).To(BeNumerically(">", body.Timestamps[2]))
		})

		It("lists dates and their entries", func() {
			var dates DatesResponse
			decode(do(http.MethodGet, "/v1/dates", ""), &dates)
			Expect(dates.Dates).To(Equal([]recall.DayCount{
				{Date: "2025-03-02", Count: 2},
				{Date: "2025-03-01", Count: 1},
			}))

			var day DayResponse
			decode(do(http.MethodGet, "/v1/dates/2025-03-02", ""), &day)
			Expect(day.Entries).To(HaveLen(2))

			Expect(do(http.MethodGet, "/v1/dates/tuesday", "").StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("reports database stats", func() {
			var stats storage.Stats
			decode(do(http.MethodGet, "/v1/stats", ""), &stats)
			Expect(stats.Count).To(Equal(3))
			Expect(stats.Apps).To(Equal(2))
		})

		It("filters activities", func() {
			var body ActivitiesResponse
			decode(do(http.MethodGet, "/v1/activities?app=Code", ""), &body)
			Expect(body.Activities).To(HaveLen(1))
			Expect(body.Activities[0].Count).To(Equal(2))

			Expect(do(http.MethodGet, "/v1/activities?limit=-1", "").StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("recording", func() {
		It("pauses and resumes", func() {
			var r RecordingResponse
			decode(do(http.MethodPost, "/v1/recording/pause", ""), &r)
			Expect(r.Changed).To(BeTrue())
			Expect(r.State.IsPaused).To(BeTrue())

			decode(do(http.MethodPost, "/v1/recording/pause", ""), &r)
			Expect(r.Changed).To(BeFalse())

			decode(do(http.MethodPost, "/v1/recording/resume", ""), &r)
			Expect(r.Changed).To(BeTrue())
			Expect(r.State.IsRecording).To(BeTrue())
		})

		It("reports status and stats", func() {
			var state recording.State
			decode(do(http.MethodGet, "/v1/recording/status", ""), &state)
			Expect(state.Status).To(Equal(recording.StatusRecording))

			insert(time.Now().Unix(), "Code", "x", []float32{1})
			var stats recall.RecordingStats
			decode(do(http.MethodGet, "/v1/recording/stats", ""), &stats)
			Expect(stats.ScreenshotCount).To(Equal(1))
			Expect(stats.TodayCount).To(Equal(1))
		})
	})

	Describe("POST /v1/reprocess", func() {
		It("runs with the posted options", func() {
			insert(10, "Code", "plain stored text from the screen", []float32{1, 0})

			resp := do(http.MethodPost, "/v1/reprocess", `{"dry_run": true, "workers": 1}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var res reprocess.Result
			decode(resp, &res)
			Expect(res.DryRun).To(BeTrue())
			Expect(res.Candidates).To(Equal(1))
		})

		It("accepts an empty body", func() {
			Expect(do(http.MethodPost, "/v1/reprocess", "").StatusCode).To(Equal(fiber.StatusOK))
		})

		It("rejects malformed options", func() {
			Expect(do(http.MethodPost, "/v1/reprocess", `{"workers": "many"}`).StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/assets/:name", func() {
		It("serves a saved frame", func() {
			path, err := assets.Save(10, -1, testutils.SolidFrame(4, 4, color.RGBA{R: 255, A: 255}))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(HaveSuffix("10.png"))

			resp := do(http.MethodGet, "/v1/assets/10.png", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		})

		It("returns 404 for a missing frame", func() {
			Expect(do(http.MethodGet, "/v1/assets/99.png", "").StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	It("publishes counters on /debug/vars", func() {
		resp := do(http.MethodGet, "/debug/vars", "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var vars struct {
			Recall map[string]any `json:"recall"`
		}
		decode(resp, &vars)
		Expect(vars.Recall).To(HaveKeyWithValue("captured_entries", BeNumerically("==", 7)))
	})
})
