package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
facts:
  db_path: /var/lib/axon/facts.db
embedding:
  provider: ollama
  model: nomic-embed-text
  cache_size: 512
qdrant:
  host: qdrant.internal
  port: 6334
  collection: axon-memories
ranking:
  w_vector: 0.6
  w_confidence: 0.4
  half_life: 72h
  diversity: true
plugins:
  dir: /etc/axon/tools
  deny:
    - process.spawn
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"AXON_FACTS_DB",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_CACHE_SIZE",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"RANK_W_VECTOR", "RANK_W_CONFIDENCE", "RANK_HALF_LIFE", "RANK_DIVERSITY",
		"AXON_PLUGINS_DIR", "AXON_DENY_CAPABILITIES",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"AXON_FACTS_DB":          "/var/lib/axon/facts.db",
		"EMBEDDING_PROVIDER":     "ollama",
		"EMBEDDING_MODEL":        "nomic-embed-text",
		"EMBEDDING_CACHE_SIZE":   "512",
		"QDRANT_HOST":            "qdrant.internal",
		"QDRANT_PORT":            "6334",
		"QDRANT_COLLECTION":      "axon-memories",
		"RANK_W_VECTOR":          "0.6",
		"RANK_W_CONFIDENCE":      "0.4",
		"RANK_HALF_LIFE":         "72h",
		"RANK_DIVERSITY":         "true",
		"AXON_PLUGINS_DIR":       "/etc/axon/tools",
		"AXON_DENY_CAPABILITIES": "process.spawn",
		"LOG_LEVEL":              "debug",
		"LOG_FORMAT":             "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("EMBEDDING_PROVIDER", "openai")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("EMBEDDING_PROVIDER"); got != "openai" {
		t.Errorf("EMBEDDING_PROVIDER: expected env override %q, got %q", "openai", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in); got != tt.want {
			t.Errorf("floatStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("AXON_TEST_DURATION", "72h")
	if got := EnvDuration("AXON_TEST_DURATION", time.Hour); got != 72*time.Hour {
		t.Errorf("EnvDuration = %v, want 72h", got)
	}
	if got := EnvDuration("AXON_TEST_DURATION_MISSING", time.Hour); got != time.Hour {
		t.Errorf("EnvDuration fallback = %v, want 1h", got)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("AXON_TEST_LIST", "process.spawn, fs.write ,")
	got := EnvList("AXON_TEST_LIST")
	if len(got) != 2 || got[0] != "process.spawn" || got[1] != "fs.write" {
		t.Errorf("EnvList = %v, want [process.spawn fs.write]", got)
	}
}
