// Package reprocess re-derives the text and embedding of stored entries with
// a pool of workers, batched transactional writes and a resumable cache.
package reprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/interpret"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/storage"
)

const (
	DefaultWorkers         = 4
	DefaultBatchSize       = 20
	DefaultCheckpointEvery = 100
)

// refinedMarkers identify text that already came out of a reprocessing or
// interpretation pass.
var refinedMarkers = []string{
	"summary:",
	"context:",
	"the screenshot shows",
	"this screenshot",
}

// Options configures one run.
type Options struct {
	Workers         int  `json:"workers"`
	BatchSize       int  `json:"batch_size"`
	CheckpointEvery int  `json:"checkpoint_every"`
	Limit           int  `json:"limit"`
	Force           bool `json:"force"`
	DryRun          bool `json:"dry_run"`
	MaxTextChars    int  `json:"max_text_chars"`
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = DefaultCheckpointEvery
	}
	if o.MaxTextChars <= 0 {
		o.MaxTextChars = extract.ReprocessMaxChars
	}
	return o
}

// WorkerDeps are the clients one worker owns for the whole run. Any of them
// may be nil.
type WorkerDeps struct {
	OCR         extract.TextRecognizer
	Vision      extract.Describer
	Interpreter *interpret.Interpreter
}

// DepsFactory builds the clients for worker id.
type DepsFactory func(id int) (WorkerDeps, error)

// Config is the configuration for an Engine.
type Config struct {
	Store   storage.Driver
	Indexer *embeddings.Indexer

	// Cache holds finalized ids. Defaults to an in-memory cache.
	Cache *Cache

	// Assets resolves the frame of an entry. Entries without a frame are
	// reprocessed from their stored text.
	Assets *screen.AssetStore

	// NewDeps is called once per worker. Defaults to workers with no
	// external clients.
	NewDeps DepsFactory

	// Publisher receives an event per revised entry. Defaults to nop.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Engine runs reprocessing passes.
type Engine struct {
	config Config
	logger *slog.Logger
}

// NewEngine validates c and fills defaults.
func NewEngine(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, errors.New("reprocess requires a store")
	}
	if c.Indexer == nil {
		return nil, errors.New("reprocess requires an indexer")
	}
	if c.Cache == nil {
		c.Cache = NewCache("")
	}
	if c.NewDeps == nil {
		c.NewDeps = func(int) (WorkerDeps, error) { return WorkerDeps{}, nil }
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	return &Engine{config: c, logger: logger.OrNop(c.Logger)}, nil
}

// outcome is what a worker derived for one entry. An empty text with no
// error means nothing usable was found.
type outcome struct {
	entry  *storage.Entry
	text   string
	source string
	err    error
}

// Run reprocesses every candidate entry. Cancelling ctx stops dispatching
// new entries; finished work is still written and checkpointed.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	res := &Result{DryRun: opts.DryRun}

	candidates, err := e.candidates(ctx, opts)
	if err != nil {
		return nil, err
	}
	res.Candidates = len(candidates)

	e.logger.Info("reprocessing started",
		"candidates", len(candidates),
		"workers", opts.Workers,
		"batch_size", opts.BatchSize,
		"dry_run", opts.DryRun,
		"force", opts.Force,
	)

	jobs := make(chan *storage.Entry)
	results := make(chan outcome)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, c := range candidates {
			select {
			case jobs <- c:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for id := range opts.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return e.worker(gctx, id, opts, jobs, results)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Writes outlive cancellation so finished work is not lost.
	wctx := context.WithoutCancel(ctx)
	agg := &aggregator{engine: e, opts: opts, res: res}
	for o := range results {
		agg.add(wctx, o)
	}
	agg.finish(wctx)

	res.Duration = time.Since(start)
	e.logger.Info("reprocessing finished",
		"updated", res.Updated,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"duration", res.Duration,
	)

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, agg.err
}

// candidates selects the entries to reprocess, newest first.
func (e *Engine) candidates(ctx context.Context, opts Options) ([]*storage.Entry, error) {
	n, err := e.config.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}
	all, err := e.config.Store.Page(ctx, 0, n)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	out := make([]*storage.Entry, 0, len(all))
	for _, entry := range all {
		if !opts.Force && (e.config.Cache.Has(entry.ID) || LooksRefined(entry.Text)) {
			continue
		}
		out = append(out, entry)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// LooksRefined reports whether text already carries an interpretation marker.
func LooksRefined(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range refinedMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (e *Engine) worker(ctx context.Context, id int, opts Options, jobs <-chan *storage.Entry, results chan<- outcome) error {
	deps, err := e.config.NewDeps(id)
	if err != nil {
		return fmt.Errorf("creating clients for worker %d: %w", id, err)
	}

	e.logger.Debug("worker started", "worker_id", id)
	defer e.logger.Debug("worker stopped", "worker_id", id)

	for entry := range jobs {
		results <- e.process(ctx, deps, entry, opts)
	}
	return nil
}

// process derives new text for one entry. Failures are returned inside the
// outcome and never stop the pool.
func (e *Engine) process(ctx context.Context, deps WorkerDeps, entry *storage.Entry, opts Options) (o outcome) {
	o.entry = entry
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		o.err = err
		return o
	}

	img, err := e.loadFrame(entry.Timestamp)
	if err != nil {
		o.err = err
		return o
	}

	var ocrText string
	switch {
	case img == nil:
		ocrText = extract.CleanOCRText(entry.Text, opts.MaxTextChars)
	case deps.OCR != nil:
		raw, err := deps.OCR.Recognize(ctx, img)
		if err != nil {
			e.logger.Debug("ocr unavailable", "entry_id", entry.ID, "error", err)
		}
		ocrText = extract.CleanOCRText(raw, opts.MaxTextChars)
	}

	vision := extract.Unavailable("no frame or describer")
	if img != nil && deps.Vision != nil {
		vision = extract.From(deps.Vision.Describe(ctx, img))
	}

	interp := extract.Unavailable("no interpreter")
	if deps.Interpreter != nil && (vision.OK || ocrText != "") {
		interp = extract.From(deps.Interpreter.Interpret(ctx, interpret.Frame{
			Vision: vision.Text,
			OCR:    ocrText,
			App:    entry.App,
			Title:  entry.Title,
		}))
	}

	ocr := extract.Unavailable("low quality ocr")
	if !extract.IsLowQuality(ocrText) {
		ocr = extract.Ok(ocrText)
	}

	switch {
	case interp.OK:
		o.text, o.source = interp.Text, "interpretation"
	case vision.OK:
		o.text, o.source = vision.Text, "vision"
	case ocr.OK:
		o.text, o.source = ocr.Text, "ocr"
	}
	return o
}

// loadFrame returns the entry's frame, or nil when it has none.
func (e *Engine) loadFrame(ts int64) (image.Image, error) {
	if e.config.Assets == nil {
		return nil, nil
	}

	path, err := e.config.Assets.Find(ts)
	if err != nil {
		if errors.Is(err, screen.ErrAssetNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e.config.Assets.Load(path)
}
