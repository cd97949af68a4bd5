// Package recall is the command and query surface over the capture
// pipeline. The API server and CLI talk to the system only through Service.
package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/search"
	"github.com/papercomputeco/recall/pkg/storage"
)

// DateLayout is the calendar day format used by AvailableDates and DayEntries.
const DateLayout = "2006-01-02"

// ErrReprocessRunning is returned when a reprocessing run is already active.
var ErrReprocessRunning = errors.New("reprocessing already running")

// Config is the configuration for a Service.
type Config struct {
	Store      storage.Driver
	Controller *recording.Controller
	Search     *search.Engine

	// Reprocess is optional; without it RunReprocessing fails.
	Reprocess *reprocess.Engine

	// Location interprets calendar days. Defaults to time.Local.
	Location *time.Location

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Service exposes the core operations with the storage failure policy
// applied: failed reads are logged and yield empty results, failed writes
// are logged and reported as not persisted.
type Service struct {
	config       Config
	reprocessing atomic.Bool
	logger       *slog.Logger
}

// NewService validates c and fills defaults.
func NewService(c Config) (*Service, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("recall service requires a store")
	case c.Controller == nil:
		return nil, errors.New("recall service requires a recording controller")
	case c.Search == nil:
		return nil, errors.New("recall service requires a search engine")
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Service{config: c, logger: logger.OrNop(c.Logger)}, nil
}

// InsertEntry stores one entry. It returns the new id and true, or false
// when the timestamp already exists or the write failed.
func (s *Service) InsertEntry(ctx context.Context, text string, ts int64, embedding []float32, app, title string) (int64, bool) {
	id, ok, err := s.config.Store.Insert(ctx, &storage.Entry{
		App:       app,
		Title:     title,
		Text:      text,
		Timestamp: ts,
		Embedding: embedding,
	})
	if err != nil {
		s.logger.Error("entry not persisted", "timestamp", ts, "error", err)
		return 0, false
	}
	return id, ok
}

// GetAllEntries returns every searchable entry, newest first.
func (s *Service) GetAllEntries(ctx context.Context) []*storage.Entry {
	entries, err := s.config.Store.Entries(ctx)
	if err != nil {
		s.logger.Error("failed to load entries", "error", err)
		return []*storage.Entry{}
	}
	return entries
}

// GetTimestamps returns every timestamp, newest first.
func (s *Service) GetTimestamps(ctx context.Context) []int64 {
	ts, err := s.config.Store.Timestamps(ctx)
	if err != nil {
		s.logger.Error("failed to load timestamps", "error", err)
		return []int64{}
	}
	return ts
}

// GetEntry returns the entry captured at ts.
func (s *Service) GetEntry(ctx context.Context, ts int64) (*storage.Entry, error) {
	return s.config.Store.GetByTimestamp(ctx, ts)
}

// Search ranks stored entries against query.
func (s *Service) Search(ctx context.Context, query string, page, pageSize int) (*search.Result, error) {
	return s.config.Search.Search(ctx, query, page, pageSize)
}

// Pause pauses recording. It reports whether a transition happened.
func (s *Service) Pause() bool {
	ok := s.config.Controller.Pause()
	if ok {
		s.logger.Info("recording paused")
	}
	return ok
}

// Resume resumes recording. It reports whether a transition happened.
func (s *Service) Resume() bool {
	ok := s.config.Controller.Resume()
	if ok {
		s.logger.Info("recording resumed")
	}
	return ok
}

// RecordingState returns the controller snapshot.
func (s *Service) RecordingState() recording.State {
	return s.config.Controller.State()
}

// RunReprocessing runs one reprocessing pass. Only one pass runs at a time.
func (s *Service) RunReprocessing(ctx context.Context, opts reprocess.Options) (*reprocess.Result, error) {
	if s.config.Reprocess == nil {
		return nil, errors.New("reprocessing is not configured")
	}
	if !s.reprocessing.CompareAndSwap(false, true) {
		return nil, ErrReprocessRunning
	}
	defer s.reprocessing.Store(false)

	return s.config.Reprocess.Run(ctx, opts)
}

// Reprocessing reports whether a pass is running.
func (s *Service) Reprocessing() bool {
	return s.reprocessing.Load()
}

// RecordingStats combines the controller state with entry counts.
type RecordingStats struct {
	recording.State
	ScreenshotCount int `json:"screenshot_count"`
	TodayCount      int `json:"today_count"`
}

// RecordingStats returns the total and today's entry counts with the
// controller state.
func (s *Service) RecordingStats(ctx context.Context) RecordingStats {
	stats := RecordingStats{State: s.RecordingState()}

	n, err := s.config.Store.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count entries", "error", err)
	}
	stats.ScreenshotCount = n

	from, to := s.dayBounds(s.config.Now())
	today, err := s.config.Store.Between(ctx, from, to)
	if err != nil {
		s.logger.Error("failed to load today's entries", "error", err)
	}
	stats.TodayCount = len(today)
	return stats
}

// Timeline is one page of entries, newest first.
type Timeline struct {
	Entries    []*storage.Entry `json:"entries"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
	Total      int              `json:"total"`
}

// Timeline pages through every entry. page is 1-based.
func (s *Service) Timeline(ctx context.Context, page, pageSize int) Timeline {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = search.DefaultPageSize
	}
	t := Timeline{Entries: []*storage.Entry{}, Page: page, PageSize: pageSize}

	total, err := s.config.Store.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count entries", "error", err)
		return t
	}
	t.Total = total
	t.TotalPages = search.PageCount(total, pageSize)

	offset, ok := search.PageOffset(total, page, pageSize)
	if !ok {
		return t
	}
	entries, err := s.config.Store.Page(ctx, offset, pageSize)
	if err != nil {
		s.logger.Error("failed to load timeline", "error", err)
		return t
	}
	if entries != nil {
		t.Entries = entries
	}
	return t
}

// DayCount is the number of entries captured on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AvailableDates lists the days with entries, newest first.
func (s *Service) AvailableDates(ctx context.Context) []DayCount {
	counts := map[string]int{}
	for _, ts := range s.GetTimestamps(ctx) {
		counts[time.Unix(ts, 0).In(s.config.Location).Format(DateLayout)]++
	}

	out := make([]DayCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, DayCount{Date: d, Count: n})
	}
	slices.SortFunc(out, func(a, b DayCount) int {
		switch {
		case a.Date > b.Date:
			return -1
		case a.Date < b.Date:
			return 1
		}
		return 0
	})
	return out
}

// DayEntries returns the entries captured on date (YYYY-MM-DD), newest first.
func (s *Service) DayEntries(ctx context.Context, date string) ([]*storage.Entry, error) {
	day, err := time.ParseInLocation(DateLayout, date, s.config.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	from, to := s.dayBounds(day)
	entries, err := s.config.Store.Between(ctx, from, to)
	if err != nil {
		s.logger.Error("failed to load day", "date", date, "error", err)
		return []*storage.Entry{}, nil
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}
	return entries, nil
}

// DatabaseInfo summarizes the store.
func (s *Service) DatabaseInfo(ctx context.Context) storage.Stats {
	st, err := s.config.Store.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to read stats", "error", err)
		return storage.Stats{}
	}
	return *st
}

// Activities aggregates entries per application.
func (s *Service) Activities(ctx context.Context, f storage.ActivityFilter) []storage.AppActivity {
	acts, err := s.config.Store.Activities(ctx, f)
	if err != nil {
		s.logger.Error("failed to load activities", "error", err)
		return []storage.AppActivity{}
	}
	if acts == nil {
		acts = []storage.AppActivity{}
	}
	return acts
}

// dayBounds returns [start, end) unix seconds of the day containing t.
func (s *Service) dayBounds(t time.Time) (int64, int64) {
	t = t.In(s.config.Location)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.config.Location)
	return start.Unix(), start.AddDate(0, 0, 1).Unix()
}
