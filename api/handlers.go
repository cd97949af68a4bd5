package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/recall/pkg/recall"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vector"
)

// TimestampsResponse lists every stored timestamp, newest first.
type TimestampsResponse struct {
	Timestamps []int64 `json:"timestamps"`
}

// DatesResponse lists the calendar days with entries, newest first.
type DatesResponse struct {
	Dates []recall.DayCount `json:"dates"`
}

// DayResponse holds the entries of one day.
type DayResponse struct {
	Date    string           `json:"date"`
	Entries []*storage.Entry `json:"entries"`
}

// ActivitiesResponse aggregates entries per application.
type ActivitiesResponse struct {
	Activities []storage.AppActivity `json:"activities"`
}

// RecordingResponse reports a pause or resume request.
type RecordingResponse struct {
	// Changed is false when the controller was already in the requested
	// state or stopped.
	Changed bool            `json:"changed"`
	State   recording.State `json:"state"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSearch handles GET /v1/search.
// Query parameters:
//   - query (required): the search text
//   - page (optional, default 1)
//   - page_size (optional, default from config)
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return errorJSON(c, fiber.StatusBadRequest, "query parameter is required")
	}

	page, pageSize, err := s.paging(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	metrics.Add("searches", 1)

	res, err := s.service.Search(c.Context(), query, page, pageSize)
	if err != nil {
		if errors.Is(err, vector.ErrEmbedding) {
			s.logger.Warn("query embedding failed", "error", err)
			return errorJSON(c, fiber.StatusBadGateway, err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(res)
}

// handleTimeline handles GET /v1/entries.
func (s *Server) handleTimeline(c *fiber.Ctx) error {
	page, pageSize, err := s.paging(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.service.Timeline(c.Context(), page, pageSize))
}

// handleGetEntry handles GET /v1/entries/:timestamp.
func (s *Server) handleGetEntry(c *fiber.Ctx) error {
	ts, err := strconv.ParseInt(c.Params("timestamp"), 10, 64)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "timestamp must be unix seconds")
	}

	entry, err := s.service.GetEntry(c.Context(), ts)
	if err != nil {
		if storage.IsNotFound(err) {
			return errorJSON(c, fiber.StatusNotFound, "entry not found")
		}
		s.logger.Error("failed to load entry", "timestamp", ts, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to load entry")
	}

	return c.JSON(entry)
}

// handleTimestamps handles GET /v1/timestamps.
func (s *Server) handleTimestamps(c *fiber.Ctx) error {
	return c.JSON(TimestampsResponse{Timestamps: s.service.GetTimestamps(c.Context())})
}

// handleDates handles GET /v1/dates.
func (s *Server) handleDates(c *fiber.Ctx) error {
	return c.JSON(DatesResponse{Dates: s.service.AvailableDates(c.Context())})
}

// handleDay handles GET /v1/dates/:date.
func (s *Server) handleDay(c *fiber.Ctx) error {
	date := c.Params("date")
	entries, err := s.service.DayEntries(c.Context(), date)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return c.JSON(DayResponse{Date: date, Entries: entries})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.service.DatabaseInfo(c.Context()))
}

// handleActivities handles GET /v1/activities.
// Query parameters: app, title, since, until (unix seconds), limit.
func (s *Server) handleActivities(c *fiber.Ctx) error {
	f := storage.ActivityFilter{
		App:   c.Query("app"),
		Title: c.Query("title"),
	}

	var err error
	if f.Since, err = int64Query(c, "since"); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if f.Until, err = int64Query(c, "until"); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	limit, err := int64Query(c, "limit")
	if err != nil || limit < 0 {
		return errorJSON(c, fiber.StatusBadRequest, "limit must be a non-negative integer")
	}
	f.Limit = int(limit)

	return c.JSON(ActivitiesResponse{Activities: s.service.Activities(c.Context(), f)})
}

// handlePause handles POST /v1/recording/pause.
func (s *Server) handlePause(c *fiber.Ctx) error {
	changed := s.service.Pause()
	return c.JSON(RecordingResponse{Changed: changed, State: s.service.RecordingState()})
}

// handleResume handles POST /v1/recording/resume.
func (s *Server) handleResume(c *fiber.Ctx) error {
	changed := s.service.Resume()
	return c.JSON(RecordingResponse{Changed: changed, State: s.service.RecordingState()})
}

// handleRecordingStatus handles GET /v1/recording/status.
func (s *Server) handleRecordingStatus(c *fiber.Ctx) error {
	return c.JSON(s.service.RecordingState())
}

// handleRecordingStats handles GET /v1/recording/stats.
func (s *Server) handleRecordingStats(c *fiber.Ctx) error {
	return c.JSON(s.service.RecordingStats(c.Context()))
}

// handleReprocess handles POST /v1/reprocess. The body is an optional JSON
// reprocess.Options. The request blocks until the run finishes.
func (s *Server) handleReprocess(c *fiber.Ctx) error {
	var opts reprocess.Options
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid reprocess options")
		}
	}

	metrics.Add("reprocess_runs", 1)

	res, err := s.service.RunReprocessing(c.UserContext(), opts)
	if err != nil {
		if errors.Is(err, recall.ErrReprocessRunning) {
			return errorJSON(c, fiber.StatusConflict, err.Error())
		}
		s.logger.Error("reprocessing failed", "error", err)
		if res == nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}

	return c.JSON(res)
}

// handleAsset handles GET /v1/assets/:name.
func (s *Server) handleAsset(c *fiber.Ctx) error {
	if s.config.Assets == nil {
		return errorJSON(c, fiber.StatusNotFound, "frame assets are not configured")
	}

	path, err := s.config.Assets.Open(c.Params("name"))
	if err != nil {
		if errors.Is(err, screen.ErrAssetNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "asset not found")
		}
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	return c.SendFile(path)
}

// paging reads page and page_size, defaulting to the first page of the
// configured size.
func (s *Server) paging(c *fiber.Ctx) (int, int, error) {
	page, err := int64Query(c, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := int64Query(c, "page_size")
	if err != nil {
		return 0, 0, err
	}
	if size <= 0 {
		size = int64(s.config.PageSize)
	}
	return int(page), int(size), nil
}

func int64Query(c *fiber.Ctx, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, key+" must be an integer")
	}
	return n, nil
}
