package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/axon-agent/axon/internal/config"
	"github.com/axon-agent/axon/internal/embedder"
	"github.com/axon-agent/axon/internal/engine"
	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/metrics"
	"github.com/axon-agent/axon/internal/permissions"
	"github.com/axon-agent/axon/internal/rank"
	"github.com/axon-agent/axon/internal/server"
	"github.com/axon-agent/axon/internal/tools"
	"github.com/axon-agent/axon/internal/vector"
)

// buildEngine constructs the engine and its collaborators from environment
// variables. The returned pingers probe the engine's live dependencies for
// GET /api/ready; the returned cleanup closes everything the engine does not
// own itself.
func buildEngine(ctx context.Context, log *slog.Logger) (*engine.Engine, []server.Pinger, error) {
	dbPath := os.Getenv("AXON_FACTS_DB")
	if dbPath == "" {
		var err error
		dbPath, err = facts.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve fact db path: %w", err)
		}
	}
	factStore, err := facts.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open fact store: %w", err)
	}
	log.Info("fact store opened", slog.String("path", dbPath))

	provider := config.EnvOrDefault("EMBEDDING_PROVIDER", "ollama")
	embed, err := embedder.New(&embedder.Config{
		Provider:   provider,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
		CacheSize:  config.EnvInt("EMBEDDING_CACHE_SIZE", 0),
	})
	if err != nil {
		_ = factStore.Close()
		return nil, nil, fmt.Errorf("init embedder: %w", err)
	}

	pingers := []server.Pinger{server.NewStorePinger(factStore, "facts")}

	// QDRANT_HOST selects the Qdrant backend; without it the engine runs on
	// the in-process vector store (single-binary mode, no persistence).
	var vectorStore vector.Store
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		dims := config.EnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(provider))
		qs, err := vector.NewQdrantStore(ctx, &vector.QdrantConfig{
			Host:       host,
			Port:       config.EnvInt("QDRANT_PORT", 6334),
			Collection: config.EnvOrDefault("QDRANT_COLLECTION", "axon-memories"),
			VectorSize: uint64(dims),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     config.EnvBool("QDRANT_TLS", false),
		})
		if err != nil {
			_ = factStore.Close()
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		vectorStore = qs
		pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
		log.Info("qdrant vector store connected", slog.String("host", host))
	} else {
		vectorStore = vector.NewMemoryStore()
		log.Info("using in-process vector store", slog.String("reason", "QDRANT_HOST not set"))
	}

	var deny []permissions.Capability
	for _, c := range config.EnvList("AXON_DENY_CAPABILITIES") {
		deny = append(deny, permissions.Capability(c))
	}

	eng, err := engine.New(engine.Config{
		Facts:    factStore,
		Vectors:  vectorStore,
		Embedder: embed,
		Gate:     permissions.NewGate(deny),
		Tracker: metrics.NewTracker(
			metrics.WithWindowSize(config.EnvInt("METRICS_WINDOW_SIZE", metrics.DefaultWindowSize)),
		),
		Ranking:     rankConfigFromEnv(),
		ReadTimeout: config.EnvDuration("RETRIEVE_TIMEOUT", engine.DefaultReadTimeout),
		Log:         log,
	})
	if err != nil {
		_ = factStore.Close()
		_ = vectorStore.Close()
		return nil, nil, fmt.Errorf("init engine: %w", err)
	}

	// Discover tool plugins. Bad manifests are logged inside, never fatal.
	if dir := os.Getenv("AXON_PLUGINS_DIR"); dir != "" {
		loaded, failed := tools.LoadManifestDir(dir, eng.Registry(), log)
		log.Info("tool plugins discovered",
			slog.String("dir", dir),
			slog.Int("loaded", len(loaded)),
			slog.Int("failed", len(failed)),
		)
	}

	return eng, pingers, nil
}

// rankConfigFromEnv reads the hybrid ranking knobs. Unset values fall back
// to the ranker's own defaults.
func rankConfigFromEnv() rank.Config {
	return rank.Config{
		WVector:            config.EnvFloat("RANK_W_VECTOR", 0),
		WConfidence:        config.EnvFloat("RANK_W_CONFIDENCE", 0),
		HalfLife:           config.EnvDuration("RANK_HALF_LIFE", 0),
		Diversity:          config.EnvBool("RANK_DIVERSITY", false),
		DiversityThreshold: config.EnvFloat("RANK_DIVERSITY_THRESHOLD", 0),
		DiversityPenalty:   config.EnvFloat("RANK_DIVERSITY_PENALTY", 0),
	}
}

// defaultThread is the thread used by CLI commands when --thread is not
// given. The CLI is a single-user surface; one shared thread matches how a
// personal agent accumulates memory.
const defaultThread = "default"
