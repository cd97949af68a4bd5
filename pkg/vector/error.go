package vector

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrCorrupt is returned when a stored embedding cannot be decoded.
	ErrCorrupt = errors.New("corrupt embedding")

	// ErrDimension is returned when two vectors have different lengths.
	ErrDimension = errors.New("embedding dimension mismatch")
)
