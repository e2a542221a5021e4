// Package config provides YAML-based configuration for axon.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. AXON_CONFIG environment variable
//  3. ~/.axon/config.yaml
//  4. ./axon.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Facts configures the structured fact store.
	Facts FactsConfig `yaml:"facts"`

	// Embedding configures the embedding provider for the semantic layer.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Ranking configures the hybrid retrieval ranker.
	Ranking RankingConfig `yaml:"ranking"`

	// Plugins configures tool plugin discovery and permissions.
	Plugins PluginsConfig `yaml:"plugins"`

	// Metrics configures the tool health tracker.
	Metrics MetricsConfig `yaml:"metrics"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Preload configures seed facts loaded at startup.
	Preload PreloadConfig `yaml:"preload"`
}

// FactsConfig holds fact store settings.
type FactsConfig struct {
	// DBPath is the SQLite database path. Defaults to ~/.axon/facts.db.
	DBPath string `yaml:"db_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, mock).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// CacheSize is the embedding LRU cache capacity (0 disables caching).
	CacheSize int `yaml:"cache_size"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Empty selects the in-process store.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RankingConfig holds hybrid ranking settings.
type RankingConfig struct {
	// WVector is the weight of the vector similarity term.
	WVector float64 `yaml:"w_vector"`
	// WConfidence is the weight of the confidence term.
	WConfidence float64 `yaml:"w_confidence"`
	// HalfLife is the recency decay half-life (Go duration, e.g. "168h").
	HalfLife string `yaml:"half_life"`
	// Diversity enables near-duplicate suppression.
	Diversity bool `yaml:"diversity"`
	// DiversityThreshold is the similarity above which suppression applies.
	DiversityThreshold float64 `yaml:"diversity_threshold"`
	// DiversityPenalty is the score multiplier for suppressed candidates.
	DiversityPenalty float64 `yaml:"diversity_penalty"`
}

// PluginsConfig holds tool plugin settings.
type PluginsConfig struct {
	// Dir is the directory scanned for tool manifests at startup.
	Dir string `yaml:"dir"`
	// Deny is the global capability deny list, applied to every plugin.
	Deny []string `yaml:"deny"`
}

// MetricsConfig holds tool health tracker settings.
type MetricsConfig struct {
	// WindowSize is the per-tool rolling sample window.
	WindowSize int `yaml:"window_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var AXON_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// PreloadConfig holds seed fact settings.
type PreloadConfig struct {
	// File is a YAML file of facts written through the engine at startup.
	File string `yaml:"file"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"AXON_FACTS_DB", func(c *Config) string { return c.Facts.DBPath }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_CACHE_SIZE", func(c *Config) string { return intStr(c.Embedding.CacheSize) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RANK_W_VECTOR", func(c *Config) string { return floatStr(c.Ranking.WVector) }},
	{"RANK_W_CONFIDENCE", func(c *Config) string { return floatStr(c.Ranking.WConfidence) }},
	{"RANK_HALF_LIFE", func(c *Config) string { return c.Ranking.HalfLife }},
	{"RANK_DIVERSITY", func(c *Config) string { return boolStr(c.Ranking.Diversity) }},
	{"RANK_DIVERSITY_THRESHOLD", func(c *Config) string { return floatStr(c.Ranking.DiversityThreshold) }},
	{"RANK_DIVERSITY_PENALTY", func(c *Config) string { return floatStr(c.Ranking.DiversityPenalty) }},
	{"AXON_PLUGINS_DIR", func(c *Config) string { return c.Plugins.Dir }},
	{"AXON_DENY_CAPABILITIES", func(c *Config) string { return strings.Join(c.Plugins.Deny, ",") }},
	{"METRICS_WINDOW_SIZE", func(c *Config) string { return intStr(c.Metrics.WindowSize) }},
	{"AXON_HOST", func(c *Config) string { return c.Server.Host }},
	{"AXON_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"AXON_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"AXON_PRELOAD_FILE", func(c *Config) string { return c.Preload.File }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("AXON_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".axon", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("axon.yaml"); err == nil {
		return "axon.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
