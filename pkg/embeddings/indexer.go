package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Indexer applies recall's embedding rules on top of an Embedder.
type Indexer struct {
	embedder Embedder
}

// NewIndexer wraps e.
func NewIndexer(e Embedder) *Indexer {
	return &Indexer{embedder: e}
}

// Index embeds text. Blank text is not embedded: previous is returned
// unchanged instead.
func (i *Indexer) Index(ctx context.Context, text string, previous []float32) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return previous, nil
	}
	return i.embedder.Embed(ctx, text)
}

// IndexBatch embeds every text, in one request when the embedder supports
// batching.
func (i *Indexer) IndexBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if b, ok := i.embedder.(BatchEmbedder); ok {
		out, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("batch embedding returned %d vectors for %d texts", len(out), len(texts))
		}
		return out, nil
	}

	out := make([][]float32, len(texts))
	for n, t := range texts {
		v, err := i.embedder.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", n, err)
		}
		out[n] = v
	}
	return out, nil
}

// Embedder returns the wrapped embedder.
func (i *Indexer) Embedder() Embedder {
	return i.embedder
}
