package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder is a deterministic, offline embedder for tests. Texts
// sharing words produce similar vectors; unrelated texts do not.
type MockEmbedder struct {
	dimension int
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with the given dimension
// (default 384 when <= 0).
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = DefaultOllamaDimension
	}
	return &MockEmbedder{dimension: dimension}
}

// Embed hashes each normalized word into a dimension bucket and
// normalizes the result to unit length.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(m.dimension)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Model returns the mock model name.
func (m *MockEmbedder) Model() string {
	return "mock"
}

// Dimension returns the configured dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}
