// Package vector holds the embedding wire format and similarity math shared
// by storage and search.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// Width32 is the element width of embeddings written by recall.
	Width32 = 4

	// Width64 is accepted on read for rows written as float64.
	Width64 = 8
)

// Encode serializes v as little-endian float32.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*Width32)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*Width32:], math.Float32bits(f))
	}
	return buf
}

// Decode parses a little-endian blob whose elements are width bytes wide.
// A zero width is treated as Width32.
func Decode(b []byte, width int) ([]float32, error) {
	if width == 0 {
		width = Width32
	}
	if width != Width32 && width != Width64 {
		return nil, fmt.Errorf("%w: unsupported element width %d", ErrCorrupt, width)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	if len(b)%width != 0 {
		return nil, fmt.Errorf("%w: blob length %d not divisible by %d", ErrCorrupt, len(b), width)
	}

	v := make([]float32, len(b)/width)
	for i := range v {
		if width == Width64 {
			v[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[i*Width64:])))
		} else {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*Width32:]))
		}
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has a
// zero norm. Vectors must have equal length; see CosineChecked.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// CosineChecked is Cosine with a dimension check.
func CosineChecked(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimension, len(a), len(b))
	}
	return Cosine(a, b), nil
}
