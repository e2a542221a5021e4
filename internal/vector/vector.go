// Package vector defines the semantic index layer of the Axon engine:
// storage and similarity search over embedded memory records. Concrete
// implementations (Qdrant for deployments, an in-process store for tests and
// single-binary setups) satisfy the Store interface so the engine never
// depends on a specific backend.
//
// Records are created only through the sync coordinator, never directly by
// callers; each record optionally points back at the fact it was derived
// from.
package vector

import (
	"context"
)

// Payload is the metadata carried alongside an embedding.
type Payload struct {
	// SourceThreadID and SourceKey identify the fact this record was
	// derived from. Both empty means the record is free-standing.
	SourceThreadID string
	SourceKey      string
	// Text is the content that was embedded.
	Text string
	// Domain mirrors the source fact's domain for filtered search.
	Domain string
	// Tags mirror the source fact's tags.
	Tags []string
}

// Record is one embedded memory entry.
type Record struct {
	// ID is the unique record identifier (a UUID).
	ID string
	// Embedding is the dense vector for the record's text.
	Embedding []float32
	// Payload holds the record metadata.
	Payload Payload
}

// Candidate is one similarity-search hit.
type Candidate struct {
	// Record is the matched record, embedding included so downstream
	// ranking can measure inter-candidate similarity.
	Record Record
	// Score is the similarity to the query, normalised into [0,1].
	Score float32
}

// Filter restricts a search to records whose payload matches all non-empty
// fields (conjunctive, like the fact store's list filters).
type Filter struct {
	// Domain, when non-empty, requires payload.Domain to match exactly.
	Domain string
	// Tag, when non-empty, requires payload.Tags to contain the value.
	Tag string
}

// Store is the vector persistence and search contract. Implementations must
// be safe to call from multiple goroutines.
type Store interface {
	// Upsert stores or replaces the record with the same ID (last write
	// wins per id).
	Upsert(ctx context.Context, rec Record) error

	// Search returns up to k candidates ranked by similarity to the query
	// embedding, most similar first. It never returns more candidates
	// than records exist. A nil filter matches everything.
	Search(ctx context.Context, embedding []float32, k int, filter *Filter) ([]Candidate, error)

	// Delete removes the record by id. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// clamp01 squeezes a raw similarity score into [0,1]. Cosine similarity on
// text embeddings is effectively non-negative; anything below zero carries no
// relevance signal.
func clamp01(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
