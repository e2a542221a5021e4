package embedder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached decorates an Embedder with an LRU cache keyed by text. Fact values
// are re-embedded on every update; caching makes repeated recalls of the same
// query and idempotent preloads cheap.
type Cached struct {
	// inner is the wrapped embedder, called only on cache misses.
	inner Embedder
	// cache maps text to its embedding.
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache holding up to size entries.
func NewCached(inner Embedder, size int) (*Cached, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns cached vectors where available and embeds only the misses.
// A batch with any miss triggers exactly one inner call covering all misses.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		misses    []string
		missIndex []int
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		misses = append(misses, text)
		missIndex = append(missIndex, i)
	}

	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("embedder: got %d embeddings for %d texts", len(vecs), len(misses))
	}

	for j, vec := range vecs {
		c.cache.Add(misses[j], vec)
		out[missIndex[j]] = vec
	}
	return out, nil
}
