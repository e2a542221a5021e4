package rank

import (
	"testing"
	"time"
)

// fixedNow is the reference time injected into ranking tests.
var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testConfig returns a Config with a deterministic clock.
func testConfig() Config {
	return Config{Now: func() time.Time { return fixedNow }}
}

func Test_Rank_EmptyInputYieldsEmptyOutput(t *testing.T) {
	t.Parallel()

	if got := Rank(nil, testConfig()); len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
	if got := Rank([]Candidate{}, testConfig()); len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}

func Test_Rank_PureVectorWeightReproducesSimilarityOrder(t *testing.T) {
	t.Parallel()

	cands := []Candidate{
		{ID: "low", VectorScore: 0.2, Confidence: 0.99},
		{ID: "high", VectorScore: 0.9, Confidence: 0.01},
		{ID: "mid", VectorScore: 0.5, Confidence: 0.5},
	}
	cfg := testConfig()
	cfg.WVector = 1
	cfg.WConfidence = 0

	got := Rank(cands, cfg)
	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func Test_Rank_MonotonicInConfidence(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	base := Candidate{ID: "x", VectorScore: 0.5, Confidence: 0.2}
	raised := base
	raised.Confidence = 0.8

	lo := Rank([]Candidate{base}, cfg)[0].Score
	hi := Rank([]Candidate{raised}, cfg)[0].Score
	if hi < lo {
		t.Errorf("score decreased when confidence rose: %v -> %v", lo, hi)
	}
}

func Test_Rank_MonotonicInVectorScore(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	base := Candidate{ID: "x", VectorScore: 0.3, Confidence: 0.5}
	raised := base
	raised.VectorScore = 0.7

	lo := Rank([]Candidate{base}, cfg)[0].Score
	hi := Rank([]Candidate{raised}, cfg)[0].Score
	if hi < lo {
		t.Errorf("score decreased when vector score rose: %v -> %v", lo, hi)
	}
}

func Test_Rank_RecencyDecaysVectorTerm(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.HalfLife = time.Hour

	fresh := Candidate{ID: "fresh", VectorScore: 0.8, RecencyTS: fixedNow}
	stale := Candidate{ID: "stale", VectorScore: 0.8, RecencyTS: fixedNow.Add(-time.Hour)}

	got := Rank([]Candidate{stale, fresh}, cfg)
	if got[0].ID != "fresh" {
		t.Fatalf("fresh candidate should outrank stale: got %s first", got[0].ID)
	}

	// One half-life halves the similarity contribution.
	wantStale := DefaultWVector * 0.8 * 0.5
	if diff := got[1].Score - wantStale; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stale score: want %v, got %v", wantStale, got[1].Score)
	}
}

func Test_Rank_MissingRecencyAppliesNoDecay(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.HalfLife = time.Hour

	got := Rank([]Candidate{{ID: "x", VectorScore: 0.6}}, cfg)
	want := DefaultWVector * 0.6
	if diff := got[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score: want %v, got %v", want, got[0].Score)
	}
}

func Test_Rank_WeightsNormalised(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.WVector = 7
	cfg.WConfidence = 3

	got := Rank([]Candidate{{ID: "x", VectorScore: 1, Confidence: 1}}, cfg)
	if diff := got[0].Score - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("normalised full score: want 1, got %v", got[0].Score)
	}
}

func Test_Rank_AllZeroScoresStillFullyOrdered(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	cands := []Candidate{
		{ID: "a"},
		{ID: "b", RecencyTS: fixedNow.Add(-time.Minute)},
		{ID: "c", RecencyTS: fixedNow},
	}
	got := Rank(cands, cfg)
	if len(got) != 3 {
		t.Fatalf("want 3, got %d", len(got))
	}
	// Equal scores: more recent timestamp first, then input order.
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func Test_Rank_TieBreakPreservesInputOrder(t *testing.T) {
	t.Parallel()
	cfg := testConfig()

	cands := []Candidate{
		{ID: "first", VectorScore: 0.5},
		{ID: "second", VectorScore: 0.5},
	}
	got := Rank(cands, cfg)
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Errorf("stable order broken: %s, %s", got[0].ID, got[1].ID)
	}
}

func Test_Rank_DiversityPenalisesNearDuplicates(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.WVector = 1
	cfg.WConfidence = 0
	cfg.Diversity = true

	// a and b point in (almost) the same direction; c is orthogonal.
	cands := []Candidate{
		{ID: "a", VectorScore: 0.9, Embedding: []float32{1, 0, 0}},
		{ID: "b", VectorScore: 0.85, Embedding: []float32{0.99, 0.01, 0}},
		{ID: "c", VectorScore: 0.5, Embedding: []float32{0, 1, 0}},
	}

	got := Rank(cands, cfg)
	if got[0].ID != "a" {
		t.Fatalf("want a first, got %s", got[0].ID)
	}
	// b is redundant with a: its score halves (0.85 -> 0.425) and it
	// re-sorts below c (0.5).
	if got[1].ID != "c" || got[2].ID != "b" {
		t.Errorf("diversity order: want c then b, got %s then %s", got[1].ID, got[2].ID)
	}
	wantB := 0.85 * DefaultDiversityPenalty
	if diff := got[2].Score - wantB; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("penalised score: want %v, got %v", wantB, got[2].Score)
	}
}

func Test_Rank_DiversitySkipsCandidatesWithoutEmbeddings(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Diversity = true

	cands := []Candidate{
		{ID: "a", VectorScore: 0.9},
		{ID: "b", VectorScore: 0.8},
	}
	got := Rank(cands, cfg)
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order changed without embeddings: %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Score >= got[0].Score {
		t.Errorf("scores not descending: %v, %v", got[0].Score, got[1].Score)
	}
}
