package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/rank"
	"github.com/axon-agent/axon/internal/vector"
)

// RetrieveRequest describes one memory query.
type RetrieveRequest struct {
	// ThreadID scopes the query to one conversation thread.
	ThreadID string
	// Query is the natural-language query to embed and search with.
	Query string
	// K bounds the result count. Zero returns an empty result.
	K int
	// Domain and Tag filter both layers conjunctively when non-empty.
	Domain string
	Tag    string
	// Confidence optionally supplies per-fact quality estimates keyed by
	// fact key, blended into the hybrid score.
	Confidence map[string]float64
}

// Result is one ranked retrieval hit.
type Result struct {
	// Key and Value are the structured fact content. Key is empty for a
	// free-standing vector record.
	Key   string
	Value string
	// Domain is the hit's domain.
	Domain string
	// Score is the final hybrid relevance.
	Score float64
	// VectorScore is the raw similarity component, 0 for fact-only hits.
	VectorScore float64
	// Locked mirrors the source fact's lock flag.
	Locked bool
	// UpdatedAt is the source fact's last write time, zero when unknown.
	UpdatedAt time.Time
}

// Retrieve runs the hybrid read path: the fact list and the vector search
// execute in parallel, bounded by the engine's read timeout. Whichever layer
// misses the deadline (or errors) is simply absent from the blend — a
// degraded answer beats no answer. Results are ranked by the hybrid scorer
// and truncated to K.
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) ([]Result, error) {
	if req.K <= 0 {
		return nil, nil
	}

	factList, hits, partial := e.parallelRead(ctx, req)
	if e.prom != nil {
		completeness := "full"
		if partial {
			completeness = "partial"
		}
		e.prom.retrievals.WithLabelValues(completeness).Inc()
	}

	candidates := mergeCandidates(factList, hits, req.Confidence)
	ranked := rank.Rank(candidates, e.ranking)
	if len(ranked) > req.K {
		ranked = ranked[:req.K]
	}

	byKey := make(map[string]*facts.Fact, len(factList))
	for _, f := range factList {
		byKey[f.Key] = f
	}

	out := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		res := Result{
			Key:         r.ID,
			Value:       r.Text,
			Score:       r.Score,
			VectorScore: r.VectorScore,
			UpdatedAt:   r.RecencyTS,
		}
		if f, ok := byKey[r.ID]; ok {
			res.Value = f.Value
			res.Domain = f.Domain
			res.Locked = f.Locked
			res.UpdatedAt = f.UpdatedAt
		}
		out = append(out, res)
	}
	return out, nil
}

// parallelRead queries the fact store and the vector index concurrently and
// waits for both, up to the read timeout. It reports whether the answer is
// partial (one layer missing).
func (e *Engine) parallelRead(ctx context.Context, req RetrieveRequest) ([]*facts.Fact, []vector.Candidate, bool) {
	type factResult struct {
		list []*facts.Fact
		err  error
	}
	type vecResult struct {
		hits []vector.Candidate
		err  error
	}

	// Buffered so a straggler finishing after the deadline does not leak
	// its goroutine.
	factCh := make(chan factResult, 1)
	vecCh := make(chan vecResult, 1)

	rctx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()

	go func() {
		list, err := e.facts.List(rctx, req.ThreadID, req.Domain, req.Tag)
		factCh <- factResult{list: list, err: err}
	}()
	go func() {
		hits, err := e.semanticSearch(rctx, req)
		vecCh <- vecResult{hits: hits, err: err}
	}()

	var (
		factList []*facts.Fact
		hits     []vector.Candidate
		missing  int
	)
	for range 2 {
		select {
		case r := <-factCh:
			if r.err != nil {
				e.log.Warn("fact read failed during retrieval", slog.Any("error", r.err))
				missing++
				continue
			}
			factList = r.list
		case r := <-vecCh:
			if r.err != nil {
				e.log.Warn("vector search failed during retrieval", slog.Any("error", r.err))
				missing++
				continue
			}
			hits = r.hits
		case <-rctx.Done():
			e.log.Warn("retrieval read timed out, proceeding with partial results",
				slog.Duration("timeout", e.readTimeout))
			return factList, hits, true
		}
	}
	return factList, hits, missing > 0
}

// semanticSearch embeds the query and searches the vector index, restricted
// to the request's thread and filters. A nil embedder disables the semantic
// layer entirely.
func (e *Engine) semanticSearch(ctx context.Context, req RetrieveRequest) ([]vector.Candidate, error) {
	if e.embed == nil || req.Query == "" {
		return nil, nil
	}
	vecs, err := e.embed.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	var filter *vector.Filter
	if req.Domain != "" || req.Tag != "" {
		filter = &vector.Filter{Domain: req.Domain, Tag: req.Tag}
	}
	// Over-fetch so diversity suppression and the fact join still have
	// enough candidates after filtering out other threads.
	hits, err := e.vectors.Search(ctx, vecs[0], req.K*4, filter)
	if err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, h := range hits {
		src := h.Record.Payload.SourceThreadID
		if src != "" && src != req.ThreadID {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// mergeCandidates joins vector hits with the thread's facts into one
// candidate list. Facts without a vector hit become fact-only candidates;
// vector hits without a source fact stand alone.
func mergeCandidates(factList []*facts.Fact, hits []vector.Candidate, confidence map[string]float64) []rank.Candidate {
	var out []rank.Candidate
	seen := make(map[string]bool, len(hits))

	for _, h := range hits {
		c := rank.Candidate{
			ID:          h.Record.Payload.SourceKey,
			Text:        h.Record.Payload.Text,
			VectorScore: float64(h.Score),
			Embedding:   h.Record.Embedding,
		}
		if c.ID == "" {
			c.ID = h.Record.ID
		} else {
			seen[c.ID] = true
		}
		out = append(out, c)
	}

	// Join recency and confidence onto the vector hits, then append the
	// facts the semantic layer missed.
	byKey := make(map[string]*facts.Fact, len(factList))
	for _, f := range factList {
		byKey[f.Key] = f
	}
	for i := range out {
		if f, ok := byKey[out[i].ID]; ok {
			out[i].RecencyTS = f.UpdatedAt
		}
		if confidence != nil {
			out[i].Confidence = confidence[out[i].ID]
		}
	}
	for _, f := range factList {
		if seen[f.Key] {
			continue
		}
		c := rank.Candidate{
			ID:        f.Key,
			Text:      f.Value,
			RecencyTS: f.UpdatedAt,
		}
		if confidence != nil {
			c.Confidence = confidence[f.Key]
		}
		out = append(out, c)
	}
	return out
}
