// Package capture runs the live capture loop: grab frames, keep the ones
// that changed, derive their text and embedding, and store them as entries.
package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/frame"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/recording"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	DefaultInterval     = 3 * time.Second
	DefaultIdleInterval = 3 * time.Second
	DefaultErrorBackoff = 5 * time.Second
)

// Config is the configuration for a Scheduler.
type Config struct {
	// Controller gates the loop. Required.
	Controller *recording.Controller

	// Grabber supplies one frame per monitor. Required.
	Grabber screen.Grabber

	// Detector decides which frames changed. Defaults to a detector at
	// frame.DefaultThreshold.
	Detector *frame.Detector

	// Extractor derives the text of a frame. Required.
	Extractor *extract.Extractor

	// Indexer embeds the derived text. Required.
	Indexer *embeddings.Indexer

	// Store persists entries. Required.
	Store storage.Driver

	// Assets stores changed frames. Optional.
	Assets *screen.AssetStore

	// Probe reports user activity. Defaults to screen.StaticProbe.
	Probe screen.ActivityProbe

	// Publisher receives an event per committed entry. Defaults to nop.
	Publisher eventstream.Publisher

	Interval     time.Duration
	IdleInterval time.Duration
	ErrorBackoff time.Duration

	// Now returns the capture time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Scheduler is the live capture loop.
type Scheduler struct {
	config   Config
	interval atomic.Int64
	captured atomic.Int64
	logger   *slog.Logger
}

// NewScheduler validates c and fills defaults.
func NewScheduler(c Config) (*Scheduler, error) {
	switch {
	case c.Controller == nil:
		return nil, errors.New("capture requires a recording controller")
	case c.Grabber == nil:
		return nil, errors.New("capture requires a grabber")
	case c.Extractor == nil:
		return nil, errors.New("capture requires an extractor")
	case c.Indexer == nil:
		return nil, errors.New("capture requires an indexer")
	case c.Store == nil:
		return nil, errors.New("capture requires a store")
	}

	if c.Detector == nil {
		c.Detector = frame.NewDetector(frame.DefaultThreshold)
	}
	if c.Probe == nil {
		c.Probe = screen.StaticProbe{}
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	s := &Scheduler{config: c, logger: logger.OrNop(c.Logger)}
	s.interval.Store(int64(c.Interval))
	return s, nil
}

// SetInterval changes the delay between cycles. It applies from the next sleep.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval.Store(int64(d))
	}
}

// SetThreshold changes the change-detection threshold.
func (s *Scheduler) SetThreshold(t float64) {
	s.config.Detector.SetThreshold(t)
}

// Captured returns how many entries this scheduler committed.
func (s *Scheduler) Captured() int64 {
	return s.captured.Load()
}

// Run loops until the controller is stopped. Cancelling ctx stops the
// controller.
func (s *Scheduler) Run(ctx context.Context) error {
	ctrl := s.config.Controller

	go func() {
		select {
		case <-ctx.Done():
			ctrl.Stop()
		case <-ctrl.Done():
		}
	}()

	s.logger.Info("capture loop started", "interval", time.Duration(s.interval.Load()))
	defer s.logger.Info("capture loop stopped", "captured", s.captured.Load())

	for {
		if ctrl.Stopped() {
			return nil
		}

		if ctrl.Paused() {
			if !ctrl.WaitIfPaused(0) {
				return nil
			}
			continue
		}

		if !s.config.Probe.Active() {
			if !ctrl.Sleep(s.config.IdleInterval) {
				return nil
			}
			continue
		}

		frames, err := s.config.Grabber.Grab(ctx)
		if err != nil {
			s.logger.Warn("screen capture failed", "error", err)
			if !ctrl.Sleep(s.config.ErrorBackoff) {
				return nil
			}
			continue
		}

		s.cycle(ctx, frames)

		if !ctrl.Sleep(time.Duration(s.interval.Load())) {
			return nil
		}
	}
}

// cycle processes one set of frames. One timestamp is sampled per cycle
// and only the first committed entry can claim it.
func (s *Scheduler) cycle(ctx context.Context, frames []image.Image) {
	if !s.config.Detector.Sync(frames) {
		s.logger.Debug("baselined monitors", "monitors", len(frames))
		return
	}

	ctrl := s.config.Controller
	ts := s.config.Now().Unix()
	app, title := s.config.Probe.Foreground()
	claimed := false

	for i, img := range frames {
		if ctrl.Stopped() || ctrl.Paused() {
			return
		}

		if !s.config.Detector.Changed(i, img) {
			continue
		}

		s.saveAsset(ts, i, len(frames), img)

		if claimed {
			s.logger.Debug("timestamp already stored this cycle", "timestamp", ts, "monitor", i)
			continue
		}

		entry, ok := s.derive(ctx, ts, i, app, title, img)
		if !ok {
			continue
		}

		if ctrl.Stopped() {
			return
		}

		id, inserted, err := s.config.Store.Insert(ctx, entry)
		if err != nil {
			s.logger.Error("entry not persisted", "timestamp", ts, "monitor", i, "error", err)
			continue
		}
		claimed = true
		if !inserted {
			s.logger.Debug("duplicate timestamp ignored", "timestamp", ts)
			continue
		}

		entry.ID = id
		s.captured.Add(1)
		s.logger.Debug("entry captured", "entry_id", id, "timestamp", ts, "monitor", i)

		if err := s.config.Publisher.Publish(ctx, eventstream.NewEntryEvent(eventstream.EventTypeEntryCaptured, *entry)); err != nil {
			s.logger.Warn("failed to publish captured entry", "entry_id", id, "error", err)
		}
	}
}

// derive extracts and embeds one frame. When the final text is empty the
// raw OCR embedding is carried over instead; a frame with neither is skipped.
func (s *Scheduler) derive(ctx context.Context, ts int64, monitor int, app, title string, img image.Image) (*storage.Entry, bool) {
	res := s.config.Extractor.Extract(ctx, img)

	var previous []float32
	if strings.TrimSpace(res.Text) == "" && strings.TrimSpace(res.RawOCR) != "" {
		raw, err := s.config.Indexer.Index(ctx, res.RawOCR, nil)
		if err != nil {
			s.logger.Warn("embedding raw ocr failed", "timestamp", ts, "monitor", monitor, "error", err)
		}
		previous = raw
	}

	embedding, err := s.config.Indexer.Index(ctx, res.Text, previous)
	if err != nil {
		s.logger.Warn("embedding failed, frame skipped", "timestamp", ts, "monitor", monitor, "error", err)
		return nil, false
	}
	if len(embedding) == 0 {
		s.logger.Debug("no text in frame, skipped", "timestamp", ts, "monitor", monitor)
		return nil, false
	}

	return &storage.Entry{
		App:       app,
		Title:     title,
		Text:      res.Text,
		Timestamp: ts,
		Embedding: embedding,
	}, true
}

func (s *Scheduler) saveAsset(ts int64, monitor, monitors int, img image.Image) {
	if s.config.Assets == nil {
		return
	}

	idx := monitor
	if monitors == 1 {
		idx = -1
	}
	if _, err := s.config.Assets.Save(ts, idx, img); err != nil {
		s.logger.Warn("failed to save frame asset", "timestamp", ts, "monitor", monitor, "error", err)
	}
}
