// Package rank implements the hybrid relevance ranking used on the Axon
// retrieval path. Each candidate blends up to three signals: vector
// similarity, recency, and a caller-supplied confidence estimate. Recency is
// a decay multiplier on the similarity term — it reduces relevance, it never
// adds new relevance of its own.
package rank

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Default blend weights and diversity parameters.
const (
	// DefaultWVector is the default weight of the similarity term.
	DefaultWVector = 0.7
	// DefaultWConfidence is the default weight of the confidence term.
	DefaultWConfidence = 0.3
	// DefaultHalfLife is the default recency half-life.
	DefaultHalfLife = 7 * 24 * time.Hour
	// DefaultDiversityThreshold is the inter-candidate similarity above
	// which a candidate is considered redundant with a higher-ranked one.
	DefaultDiversityThreshold = 0.92
	// DefaultDiversityPenalty is the factor applied to a redundant
	// candidate's score.
	DefaultDiversityPenalty = 0.5
)

// Candidate is one retrieval result prior to ranking. Zero values mean the
// signal is absent and contributes nothing.
type Candidate struct {
	// ID identifies the candidate for the caller.
	ID string
	// Text is the candidate content, carried through for the caller.
	Text string
	// VectorScore is the similarity to the query in [0,1]; 0 when the
	// candidate has no vector counterpart.
	VectorScore float64
	// Confidence is a caller-supplied quality estimate in [0,1].
	Confidence float64
	// RecencyTS is when the candidate was last updated. The zero time
	// means unknown, which applies no decay.
	RecencyTS time.Time
	// Embedding, when present, lets diversity suppression measure
	// similarity between candidates.
	Embedding []float32
}

// Ranked is a candidate with its final hybrid score.
type Ranked struct {
	Candidate
	// Score is the blended relevance value the list is ordered by.
	Score float64
	// pos is the candidate's original input position, the final tie-break.
	pos int
}

// Config controls the blend. The zero value selects all defaults.
type Config struct {
	// WVector and WConfidence are the blend weights. They are normalised
	// so their sum is 1; both zero selects 0.7/0.3.
	WVector     float64
	WConfidence float64
	// HalfLife is the recency decay half-life (0 = DefaultHalfLife).
	HalfLife time.Duration
	// Diversity enables similarity-based suppression of near-duplicate
	// candidates.
	Diversity bool
	// DiversityThreshold is the similarity above which suppression
	// applies (0 = DefaultDiversityThreshold).
	DiversityThreshold float64
	// DiversityPenalty is the score multiplier for suppressed candidates
	// (0 = DefaultDiversityPenalty).
	DiversityPenalty float64
	// Now supplies the current time for age computation; nil = time.Now.
	// Injected by tests for deterministic decay.
	Now func() time.Time
}

// normalized returns a copy of cfg with defaults applied and weights
// normalised to sum to 1.
func (cfg Config) normalized() Config {
	out := cfg
	if out.WVector == 0 && out.WConfidence == 0 {
		out.WVector, out.WConfidence = DefaultWVector, DefaultWConfidence
	} else {
		sum := out.WVector + out.WConfidence
		out.WVector /= sum
		out.WConfidence /= sum
	}
	if out.HalfLife == 0 {
		out.HalfLife = DefaultHalfLife
	}
	if out.DiversityThreshold == 0 {
		out.DiversityThreshold = DefaultDiversityThreshold
	}
	if out.DiversityPenalty == 0 {
		out.DiversityPenalty = DefaultDiversityPenalty
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Rank orders candidates by hybrid score, highest first. An empty input
// yields an empty output; all-zero scores still produce a fully tie-broken
// ordering. The input slice is not modified.
func Rank(candidates []Candidate, cfg Config) []Ranked {
	if len(candidates) == 0 {
		return nil
	}
	cfg = cfg.normalized()
	now := cfg.Now()

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Score: score(c, cfg, now), pos: i}
	}

	sortRanked(ranked)

	if cfg.Diversity {
		ranked = suppress(ranked, cfg)
		sortRanked(ranked)
	}
	return ranked
}

// score computes the blended relevance of one candidate.
func score(c Candidate, cfg Config, now time.Time) float64 {
	vs := c.VectorScore * recencyFactor(c.RecencyTS, now, cfg.HalfLife)
	return cfg.WVector*vs + cfg.WConfidence*c.Confidence
}

// recencyFactor returns exp(-age/halfLife*ln2), so a candidate exactly one
// half-life old scores half its raw similarity. An unknown timestamp applies
// no decay: decay needs an age to work from, and absence of a signal never
// zeroes out another signal.
func recencyFactor(ts, now time.Time, halfLife time.Duration) float64 {
	if ts.IsZero() {
		return 1
	}
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Seconds() / halfLife.Seconds())
}

// sortRanked orders by score descending, breaking ties by more recent
// RecencyTS first and then by original input position.
func sortRanked(ranked []Ranked) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].RecencyTS.Equal(ranked[j].RecencyTS) {
			return ranked[i].RecencyTS.After(ranked[j].RecencyTS)
		}
		return ranked[i].pos < ranked[j].pos
	})
}

// suppress performs a single pass over the sorted list: any candidate whose
// embedding similarity to an already-accepted higher-ranked candidate
// exceeds the threshold has its score multiplied by the penalty. Each
// candidate is penalised at most once; the pass never iterates to a fixed
// point.
func suppress(ranked []Ranked, cfg Config) []Ranked {
	var accepted []Ranked
	for _, r := range ranked {
		if redundant(r, accepted, cfg.DiversityThreshold) {
			r.Score *= cfg.DiversityPenalty
		}
		accepted = append(accepted, r)
	}
	return accepted
}

// redundant reports whether r's embedding is closer than threshold to any
// accepted candidate. Candidates without embeddings are never redundant.
func redundant(r Ranked, accepted []Ranked, threshold float64) bool {
	if len(r.Embedding) == 0 {
		return false
	}
	for _, a := range accepted {
		if len(a.Embedding) != len(r.Embedding) || len(a.Embedding) == 0 {
			continue
		}
		if similarity(r.Embedding, a.Embedding) > threshold {
			return true
		}
	}
	return false
}

// similarity is the cosine similarity of two same-length vectors.
func similarity(a, b []float32) float64 {
	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}
	nx := floats.Norm(x, 2)
	ny := floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0
	}
	return floats.Dot(x, y) / (nx * ny)
}
