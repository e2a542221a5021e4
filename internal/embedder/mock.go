package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// MockDimensions is the vector size produced by the Mock embedder.
// Matches all-MiniLM-L6-v2 so mock vectors are a realistic shape.
const MockDimensions = 384

// Mock is a deterministic Embedder for tests and offline use. Each text maps
// to a stable unit vector derived from its FNV hash, so equal texts always
// embed equally and distinct texts are very unlikely to collide.
type Mock struct {
	// calls counts Embed invocations, used by tests to verify caching.
	calls atomic.Int64
	// fail, when set, makes every Embed call return this error.
	fail error
}

// NewMock returns a new deterministic mock embedder.
func NewMock() *Mock {
	return &Mock{}
}

// FailWith makes every subsequent Embed call return err. Pass nil to restore
// normal operation.
func (m *Mock) FailWith(err error) {
	m.fail = err
}

// Calls returns the number of Embed invocations so far.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}

// Embed converts each text into a deterministic unit vector.
func (m *Mock) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.fail != nil {
		return nil, m.fail
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

// hashVector expands the FNV-64 hash of text into a normalised vector using
// a linear congruential generator seeded by the hash.
func hashVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, MockDimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed)) / float32(math.MaxInt64)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
