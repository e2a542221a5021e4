package vector

import (
	"context"
	"testing"
)

func Test_MemoryStore_UpsertAndSearch(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	recs := []Record{
		{ID: "a", Embedding: []float32{1, 0, 0}, Payload: Payload{Text: "alpha"}},
		{ID: "b", Embedding: []float32{0, 1, 0}, Payload: Payload{Text: "beta"}},
		{ID: "c", Embedding: []float32{0.9, 0.1, 0}, Payload: Payload{Text: "gamma"}},
	}
	for _, r := range recs {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.ID, err)
		}
	}

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Record.ID != "a" || hits[1].Record.ID != "c" {
		t.Errorf("ordering: got %s, %s", hits[0].Record.ID, hits[1].Record.ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not descending: %v, %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Score < 0 || hits[0].Score > 1 {
		t.Errorf("score out of [0,1]: %v", hits[0].Score)
	}
}

func Test_MemoryStore_SearchNeverReturnsMoreThanExist(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, Record{ID: "only", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("want 1 hit, got %d", len(hits))
	}
}

func Test_MemoryStore_SearchZeroK(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	hits, err := s.Search(context.Background(), []float32{1, 0}, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("k=0: want empty, got %d", len(hits))
	}
}

func Test_MemoryStore_UpsertLastWriteWins(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Upsert(ctx, Record{ID: "x", Embedding: []float32{1, 0}, Payload: Payload{Text: "old"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, Record{ID: "x", Embedding: []float32{0, 1}, Payload: Payload{Text: "new"}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("want 1 record, got %d", s.Len())
	}

	hits, err := s.Search(ctx, []float32{0, 1}, 1, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Record.Payload.Text != "new" {
		t.Errorf("want new payload, got %q", hits[0].Record.Payload.Text)
	}
}

func Test_MemoryStore_FilterIsConjunctive(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	recs := []Record{
		{ID: "a", Embedding: []float32{1, 0}, Payload: Payload{Domain: "personal", Tags: []string{"loc"}}},
		{ID: "b", Embedding: []float32{1, 0}, Payload: Payload{Domain: "personal", Tags: []string{"food"}}},
		{ID: "c", Embedding: []float32{1, 0}, Payload: Payload{Domain: "project", Tags: []string{"loc"}}},
	}
	for _, r := range recs {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.ID, err)
		}
	}

	hits, err := s.Search(ctx, []float32{1, 0}, 10, &Filter{Domain: "personal", Tag: "loc"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Record.ID != "a" {
		t.Errorf("conjunctive filter: got %d hits", len(hits))
	}
}

func Test_MemoryStore_DeleteMissingIsIdempotent(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	if err := s.Upsert(ctx, Record{ID: "x", Embedding: []float32{1}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("record not removed")
	}
}
