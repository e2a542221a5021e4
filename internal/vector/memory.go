package vector

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// MemoryStore is an in-process Store that performs brute-force cosine search
// over a map of records. It backs tests and single-binary deployments that
// have no Qdrant instance; at personal-knowledge scale (thousands of records)
// a linear scan is faster than a network round trip.
type MemoryStore struct {
	// mu guards records.
	mu sync.RWMutex
	// records maps record id to the stored record.
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Upsert stores or replaces the record with the same ID.
func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("vector: upsert: record id must not be empty")
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("vector: upsert: record %s has no embedding", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Search returns up to k candidates ranked by cosine similarity, most
// similar first.
func (s *MemoryStore) Search(_ context.Context, embedding []float32, k int, filter *Filter) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("vector: search: query embedding is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]Candidate, 0, len(s.records))
	for _, rec := range s.records {
		if !matches(filter, rec.Payload) {
			continue
		}
		sim, err := cosine(embedding, rec.Embedding)
		if err != nil {
			return nil, fmt.Errorf("vector: search record %s: %w", rec.ID, err)
		}
		candidates = append(candidates, Candidate{Record: rec, Score: clamp01(sim)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Delete removes the record by id. Missing ids are ignored.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// matches reports whether the payload satisfies every non-empty filter field.
func matches(f *Filter, p Payload) bool {
	if f == nil {
		return true
	}
	if f.Domain != "" && p.Domain != f.Domain {
		return false
	}
	if f.Tag != "" && !slices.Contains(p.Tags, f.Tag) {
		return false
	}
	return true
}

// cosine computes the cosine similarity between two vectors of equal length.
func cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}
	nx := floats.Norm(x, 2)
	ny := floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0, nil
	}
	return float32(floats.Dot(x, y) / (nx * ny)), nil
}
