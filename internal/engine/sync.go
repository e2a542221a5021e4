package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/axon-agent/axon/internal/embedder"
	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/vector"
)

// PutFact writes a fact and, when withEmbedding is set, keeps its semantic
// counterpart in step: the value is embedded, the vector record is upserted
// under the fact's existing vector id (or a fresh one), and the link is
// recorded on the fact row.
//
// The structured write is authoritative. If embedding or the index upsert
// fails, the fact is still stored and marked Unembedded; the returned state
// tells the caller which variant happened. A put against a locked fact fails
// with facts.ErrLockViolation before anything is embedded.
func (e *Engine) PutFact(ctx context.Context, f *facts.Fact, withEmbedding bool) (facts.EmbedState, error) {
	if err := e.facts.Put(ctx, f); err != nil {
		return facts.EmbedNone, err
	}
	if !withEmbedding {
		// An existing vector record is left in place: the caller opted out
		// of re-embedding, not out of the semantic layer.
		if f.EmbedState == "" {
			f.EmbedState = facts.EmbedNone
		}
		return f.EmbedState, nil
	}

	emb, err := e.embedText(ctx, f)
	if err != nil {
		return e.degrade(ctx, f, fmt.Errorf("embed: %w", err))
	}

	// Reuse the fact's vector id so an update replaces the old record
	// instead of stranding it.
	id := f.VectorRef
	if id == "" {
		id = uuid.NewString()
	}
	rec := vector.Record{
		ID:        id,
		Embedding: emb,
		Payload: vector.Payload{
			SourceThreadID: f.ThreadID,
			SourceKey:      f.Key,
			Text:           embeddingText(f),
			Domain:         f.Domain,
			Tags:           f.Tags,
		},
	}
	if err := e.vectors.Upsert(ctx, rec); err != nil {
		return e.degrade(ctx, f, fmt.Errorf("vector upsert: %w", err))
	}

	if err := e.facts.SetVectorRef(ctx, f.ThreadID, f.Key, id, facts.Embedded); err != nil {
		return facts.Unembedded, fmt.Errorf("engine: link vector ref: %w", err)
	}
	f.VectorRef = id
	f.EmbedState = facts.Embedded
	return facts.Embedded, nil
}

// embedText runs the embedder over the fact's searchable text.
func (e *Engine) embedText(ctx context.Context, f *facts.Fact) ([]float32, error) {
	if e.embed == nil {
		return nil, errors.New("no embedder configured")
	}
	return embedder.EmbedOne(ctx, e.embed, embeddingText(f))
}

// embeddingText is the canonical text form a fact is embedded under. Key and
// value together, so a search for either side of the pair can find it.
func embeddingText(f *facts.Fact) string {
	return f.Key + ": " + f.Value
}

// degrade records a failed embedding attempt: the fact stays, marked
// Unembedded, with its previous vector ref preserved so a later delete can
// still clean up the stale record.
func (e *Engine) degrade(ctx context.Context, f *facts.Fact, cause error) (facts.EmbedState, error) {
	e.log.Warn("storing fact without embedding",
		slog.String("thread", f.ThreadID),
		slog.String("key", f.Key),
		slog.Any("error", cause),
	)
	if e.prom != nil {
		e.prom.degradedWrites.Inc()
	}
	if err := e.facts.SetVectorRef(ctx, f.ThreadID, f.Key, f.VectorRef, facts.Unembedded); err != nil {
		return facts.Unembedded, fmt.Errorf("engine: mark unembedded: %w", err)
	}
	f.EmbedState = facts.Unembedded
	return facts.Unembedded, nil
}

// DeleteFact removes a fact and its vector record as one logical operation.
// The vector record goes first: if that fails the fact delete never runs and
// the call fails with ErrSyncConflict, so a fact is never left pointing at a
// record the engine cannot reach. Deleting a missing fact is idempotent.
func (e *Engine) DeleteFact(ctx context.Context, threadID, key string) error {
	cur, err := e.facts.Get(ctx, threadID, key)
	if err != nil {
		if errors.Is(err, facts.ErrNotFound) {
			return nil
		}
		return err
	}

	if cur.VectorRef != "" {
		if err := e.vectors.Delete(ctx, cur.VectorRef); err != nil {
			if e.prom != nil {
				e.prom.syncConflicts.Inc()
			}
			e.log.Error("vector delete failed, keeping fact",
				slog.String("thread", threadID),
				slog.String("key", key),
				slog.String("vector_ref", cur.VectorRef),
				slog.Any("error", err),
			)
			return fmt.Errorf("engine: delete %s/%s: %w: %v", threadID, key, ErrSyncConflict, err)
		}
	}

	return e.facts.Delete(ctx, threadID, key)
}

// GetFact returns one fact by (threadID, key).
func (e *Engine) GetFact(ctx context.Context, threadID, key string) (*facts.Fact, error) {
	return e.facts.Get(ctx, threadID, key)
}

// ListFacts returns the thread's facts, filtered conjunctively by domain and
// tag when non-empty.
func (e *Engine) ListFacts(ctx context.Context, threadID, domain, tag string) ([]*facts.Fact, error) {
	return e.facts.List(ctx, threadID, domain, tag)
}

// SetLocked flips a fact's lock flag.
func (e *Engine) SetLocked(ctx context.Context, threadID, key string, locked bool) error {
	return e.facts.SetLocked(ctx, threadID, key, locked)
}
