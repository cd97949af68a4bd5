// Package search ranks stored entries against a natural-language query by
// cosine similarity of their embeddings.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/vector"
)

// DefaultPageSize is used when a request carries no page size.
const DefaultPageSize = 10

// Match is one ranked entry.
type Match struct {
	Entry *storage.Entry `json:"entry"`
	Score float64        `json:"score"`
}

// Result is one page of ranked matches.
type Result struct {
	Query        string  `json:"query"`
	Results      []Match `json:"results"`
	Page         int     `json:"page"`
	PageSize     int     `json:"page_size"`
	TotalPages   int     `json:"total_pages"`
	TotalMatches int     `json:"total_matches"`

	// NoMatches is set when no entry could be compared with the query.
	NoMatches bool `json:"no_matches"`
}

// EntrySource lists candidate entries.
type EntrySource interface {
	Entries(ctx context.Context) ([]*storage.Entry, error)
}

// Engine embeds queries and ranks entries from its source.
type Engine struct {
	embedder embeddings.Embedder
	source   EntrySource
	logger   *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(embedder embeddings.Embedder, source EntrySource, l *slog.Logger) *Engine {
	return &Engine{embedder: embedder, source: source, logger: logger.OrNop(l)}
}

// Search embeds query and returns the requested page of ranked entries.
// page is 1-based; values below 1 select the first page. A pageSize below
// 1 uses DefaultPageSize.
func (e *Engine) Search(ctx context.Context, query string, page, pageSize int) (*Result, error) {
	q, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrEmbedding, err)
	}

	// A failed read searches nothing rather than failing the query.
	entries, err := e.source.Entries(ctx)
	if err != nil {
		e.logger.Error("failed to load entries for search", "error", err)
		entries = nil
	}

	ranked := Rank(q, entries)
	if dropped := len(entries) - len(ranked); dropped > 0 {
		e.logger.Debug("skipped entries with mismatched dimension",
			"count", dropped,
			"query_dim", len(q),
		)
	}

	res := Paginate(ranked, page, pageSize)
	res.Query = query
	return res, nil
}

// Rank scores entries against q. Entries whose embedding length differs
// from q are left out. The order is similarity descending, then timestamp
// descending; equal keys keep their input order.
func Rank(q []float32, entries []*storage.Entry) []Match {
	matches := make([]Match, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Embedding) != len(q) || len(q) == 0 {
			continue
		}
		matches = append(matches, Match{Entry: entry, Score: vector.Cosine(q, entry.Embedding)})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Entry.Timestamp > b.Entry.Timestamp:
			return -1
		case a.Entry.Timestamp < b.Entry.Timestamp:
			return 1
		}
		return 0
	})
	return matches
}

// Paginate slices ranked matches into a Result.
func Paginate(matches []Match, page, pageSize int) *Result {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	n := len(matches)
	res := &Result{
		Results:      []Match{},
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   PageCount(n, pageSize),
		TotalMatches: n,
		NoMatches:    n == 0,
	}

	if start, ok := PageOffset(n, page, pageSize); ok {
		res.Results = matches[start : start+min(pageSize, n-start)]
	}
	return res
}

// PageCount returns how many pages of size pageSize hold n items.
func PageCount(n, pageSize int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	pages := n / pageSize
	if n%pageSize != 0 {
		pages++
	}
	return pages
}

// PageOffset returns the offset of the first item on page, or false when
// page lies past the last page. The page bound is checked before the
// offset is computed so large pages cannot overflow.
func PageOffset(n, page, pageSize int) (int, bool) {
	if page < 1 || pageSize <= 0 || page-1 >= PageCount(n, pageSize) {
		return 0, false
	}
	return (page - 1) * pageSize, true
}
