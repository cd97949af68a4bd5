package reprocess

import (
	"context"
	"fmt"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/storage"
)

// aggregator owns all writes of a run. It is driven by a single goroutine.
type aggregator struct {
	engine *Engine
	opts   Options
	res    *Result

	buffer    []outcome
	completed int

	// err is the last checkpoint failure.
	err error
}

func (a *aggregator) add(ctx context.Context, o outcome) {
	a.completed++
	log := a.engine.logger

	switch {
	case o.err != nil:
		a.fail(o.entry, o.err)
		log.Warn("entry reprocessing failed", "entry_id", o.entry.ID, "error", o.err)

	case o.text == "":
		a.res.Skipped++
		log.Debug("no usable text, entry skipped", "entry_id", o.entry.ID)
		if !a.opts.DryRun {
			a.engine.config.Cache.Add(o.entry.ID)
		}

	default:
		a.buffer = append(a.buffer, o)
		if len(a.buffer) >= a.opts.BatchSize {
			a.flush(ctx)
		}
	}

	if a.completed%a.opts.CheckpointEvery == 0 {
		a.checkpoint()
	}
}

func (a *aggregator) finish(ctx context.Context) {
	a.flush(ctx)
	a.checkpoint()
}

// flush embeds the buffered texts in one call and writes them in one
// transaction. Ids are cached only after the write committed.
func (a *aggregator) flush(ctx context.Context) {
	if len(a.buffer) == 0 {
		return
	}
	batch := a.buffer
	a.buffer = nil
	log := a.engine.logger

	if a.opts.DryRun {
		for _, o := range batch {
			log.Info("would update entry",
				"entry_id", o.entry.ID,
				"timestamp", o.entry.Timestamp,
				"source", o.source,
				"text", o.text,
			)
		}
		a.res.Updated += len(batch)
		return
	}

	texts := make([]string, len(batch))
	for i, o := range batch {
		texts[i] = o.text
	}

	vecs, err := a.engine.config.Indexer.IndexBatch(ctx, texts)
	if err != nil {
		a.failBatch(batch, fmt.Errorf("embedding batch: %w", err))
		return
	}

	revs := make([]storage.Revision, len(batch))
	for i, o := range batch {
		revs[i] = storage.Revision{ID: o.entry.ID, Text: o.text, Embedding: vecs[i]}
	}

	missing, err := a.engine.config.Store.UpdateBatch(ctx, revs)
	if err != nil {
		a.failBatch(batch, fmt.Errorf("writing batch: %w", err))
		return
	}

	gone := make(map[int64]struct{}, len(missing))
	for _, id := range missing {
		gone[id] = struct{}{}
	}

	ids := make([]int64, 0, len(batch))
	written := make([]int, 0, len(batch))
	for i, o := range batch {
		if _, ok := gone[o.entry.ID]; ok {
			a.fail(o.entry, storage.NotFoundError{ID: o.entry.ID})
			log.Warn("entry no longer exists, revision dropped", "entry_id", o.entry.ID)
			continue
		}
		ids = append(ids, o.entry.ID)
		written = append(written, i)
	}

	a.engine.config.Cache.Add(ids...)
	a.res.Updated += len(ids)
	log.Debug("batch written", "entries", len(ids), "missing", len(missing))

	for _, i := range written {
		o := batch[i]
		revised := *o.entry
		revised.Text = revs[i].Text
		event := eventstream.NewEntryEvent(eventstream.EventTypeEntryRevised, revised)
		if err := a.engine.config.Publisher.Publish(ctx, event); err != nil {
			log.Warn("failed to publish revised entry", "entry_id", o.entry.ID, "error", err)
		}
	}
}

func (a *aggregator) checkpoint() {
	if a.opts.DryRun {
		return
	}
	if err := a.engine.config.Cache.Save(); err != nil {
		a.err = fmt.Errorf("saving processing cache: %w", err)
		a.engine.logger.Error("checkpoint failed", "error", err)
		return
	}
	a.engine.logger.Debug("checkpoint saved", "completed", a.completed, "cached", a.engine.config.Cache.Len())
}

func (a *aggregator) failBatch(batch []outcome, err error) {
	a.engine.logger.Error("batch not persisted", "entries", len(batch), "error", err)
	for _, o := range batch {
		a.fail(o.entry, err)
	}
}

func (a *aggregator) fail(e *storage.Entry, err error) {
	a.res.Errors++
	a.res.Failures = append(a.res.Failures, Failure{
		EntryID:   e.ID,
		Timestamp: e.Timestamp,
		Error:     err.Error(),
	})
}
