package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use Store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or replaces the record with the given ID. The embedding must
// be pre-computed; this store never calls the embedder itself.
func (s *QdrantStore) Upsert(ctx context.Context, rec Record) error {
	payload := map[string]interface{}{
		"source_thread_id": rec.Payload.SourceThreadID,
		"source_key":       rec.Payload.SourceKey,
		"text":             rec.Payload.Text,
		"domain":           rec.Payload.Domain,
	}
	tags := make([]interface{}, 0, len(rec.Payload.Tags))
	for _, t := range rec.Payload.Tags {
		tags = append(tags, t)
	}
	payload["tags"] = tags

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results,
// optionally restricted by a payload filter.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, k int, filter *Filter) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if f := buildFilter(filter); f != nil {
		query.Filter = f
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		c := Candidate{
			Record: Record{ID: r.Id.GetUuid()},
			Score:  clamp01(r.Score),
		}
		if v := r.Vectors.GetVector(); v != nil {
			c.Record.Embedding = v.GetData()
		}
		if p := r.Payload; p != nil {
			if v, ok := p["source_thread_id"]; ok {
				c.Record.Payload.SourceThreadID = v.GetStringValue()
			}
			if v, ok := p["source_key"]; ok {
				c.Record.Payload.SourceKey = v.GetStringValue()
			}
			if v, ok := p["text"]; ok {
				c.Record.Payload.Text = v.GetStringValue()
			}
			if v, ok := p["domain"]; ok {
				c.Record.Payload.Domain = v.GetStringValue()
			}
			if v, ok := p["tags"]; ok {
				for _, lv := range v.GetListValue().GetValues() {
					c.Record.Payload.Tags = append(c.Record.Payload.Tags, lv.GetStringValue())
				}
			}
		}
		out = append(out, c)
	}

	return out, nil
}

// buildFilter converts a Filter into the Qdrant payload filter form.
// Returns nil when the filter is nil or empty.
func buildFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if f.Domain != "" {
		must = append(must, qdrant.NewMatch("domain", f.Domain))
	}
	if f.Tag != "" {
		must = append(must, qdrant.NewMatch("tags", f.Tag))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Delete removes the record with the given id from the collection.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Client exposes the underlying Qdrant gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
