// Package embedder provides the external embedding collaborator for the Axon
// engine: implementations that convert text into dense vector embeddings.
// Each backend (Ollama, OpenAI-compatible) is reached via plain HTTP — no
// additional SDK dependencies are required. A deterministic mock backs tests
// and offline use.
//
// The embedder is consumed only by the sync coordinator; the vector store
// never computes embeddings itself.
package embedder

import (
	"context"
	"fmt"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text and returns its vector. Convenience wrapper
// for the common single-fact case.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder: empty result for single text")
	}
	return vecs[0], nil
}

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers that pre-configure a vector store (e.g. Qdrant
// collection creation) should use this rather than hardcoding a value.
func DefaultDimensions(backend string) int {
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "mock":
		return MockDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is the backend name: "ollama", "openai", or "mock".
	Provider string
	// Model is the embedding model name (empty = backend default).
	Model string
	// Endpoint is the backend base URL (Ollama host or OpenAI-compatible base).
	Endpoint string
	// APIKey authenticates OpenAI-compatible backends.
	APIKey string
	// Dimensions overrides the embedding vector length (0 = model default).
	Dimensions int
	// CacheSize is the LRU embed-cache capacity; 0 disables caching.
	CacheSize int
}

// New constructs the Embedder selected by cfg.Provider, wrapping it in an
// LRU cache when cfg.CacheSize is positive.
func New(cfg *Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "", "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		e = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})
	case "openai":
		base := cfg.Endpoint
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		e = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    base,
			APIKey:     cfg.APIKey,
			Model:      model,
			Dimensions: cfg.Dimensions,
		})
	case "mock":
		e = NewMock()
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		e, err = NewCached(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}
