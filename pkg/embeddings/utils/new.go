// Package embeddingutils builds embedders from configuration.
package embeddingutils

import (
	"fmt"
	"time"

	"github.com/papercomputeco/recall/pkg/embeddings"
	"github.com/papercomputeco/recall/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Timeout      time.Duration
}

// NewEmbedder returns the embedder for the configured provider.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama", "":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}

// NewIndexer is NewEmbedder wrapped in an embeddings.Indexer.
func NewIndexer(o *NewEmbedderOpts) (*embeddings.Indexer, error) {
	e, err := NewEmbedder(o)
	if err != nil {
		return nil, err
	}
	return embeddings.NewIndexer(e), nil
}
