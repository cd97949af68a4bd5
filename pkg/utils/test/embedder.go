package testutils

import (
	"context"
	"fmt"
	"sync"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	mu    sync.Mutex
	calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

// Calls returns how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockEmbedder) Close() error {
	return nil
}

// MockBatchEmbedder is a MockEmbedder that also supports batch requests.
type MockBatchEmbedder struct {
	*MockEmbedder

	// FailBatch makes every EmbedBatch call fail.
	FailBatch bool

	batchMu    sync.Mutex
	batchCalls int
	batchSizes []int
}

func NewMockBatchEmbedder() *MockBatchEmbedder {
	return &MockBatchEmbedder{MockEmbedder: NewMockEmbedder()}
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchMu.Lock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	m.batchMu.Unlock()

	if m.FailBatch {
		return nil, fmt.Errorf("mock batch embedding failure")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// BatchCalls returns how many times EmbedBatch ran.
func (m *MockBatchEmbedder) BatchCalls() int {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	return m.batchCalls
}

// BatchSizes returns the length of every batch received, in order.
func (m *MockBatchEmbedder) BatchSizes() []int {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	return append([]int(nil), m.batchSizes...)
}
