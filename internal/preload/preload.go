// Package preload implements startup seeding of the fact store. It reads a
// YAML file of seed facts and writes each one through the engine, so preloaded
// facts get the same lock checks and vector bookkeeping as facts learned at
// runtime. This loader is invoked by the `axon serve` and `axon facts load`
// CLI commands.
package preload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/axon-agent/axon/internal/facts"
)

// Writer is the engine surface the loader writes through. *engine.Engine
// satisfies it; tests inject a fake.
type Writer interface {
	// PutFact writes one fact, embedding it when requested.
	PutFact(ctx context.Context, f *facts.Fact, withEmbedding bool) (facts.EmbedState, error)
}

// Entry is one seed fact in the preload file.
type Entry struct {
	// Thread is the conversation thread the fact belongs to.
	Thread string `yaml:"thread"`
	// Key is the fact name.
	Key string `yaml:"key"`
	// Value is the fact content.
	Value string `yaml:"value"`
	// Identity names the source the fact was learned from.
	Identity string `yaml:"identity"`
	// Domain is the fact namespace.
	Domain string `yaml:"domain"`
	// Tags are free-form labels.
	Tags []string `yaml:"tags"`
	// Locked marks the fact immutable from the start.
	Locked bool `yaml:"locked"`
	// Embed requests a semantic counterpart for the fact.
	Embed bool `yaml:"embed"`
}

// File is the top-level preload file structure.
type File struct {
	// Facts is the list of seed facts, applied in order.
	Facts []Entry `yaml:"facts"`
}

// Result summarises one preload run.
type Result struct {
	// Loaded is the number of facts written successfully.
	Loaded int
	// Failures maps "thread/key" to the error that rejected the entry.
	// One bad entry never aborts the rest of the file.
	Failures map[string]error
}

// LoadFile parses the YAML preload file at path and writes every entry
// through w. Entries are applied in file order; a failing entry is recorded
// and skipped. A missing or unreadable file is an error — a configured
// preload that silently loads nothing is worse than a startup failure.
func LoadFile(ctx context.Context, w Writer, path string, log *slog.Logger) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("preload: read %s: %w", path, err)
	}

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("preload: parse %s: %w", path, err)
	}

	res := &Result{Failures: make(map[string]error)}
	for i, e := range file.Facts {
		if err := validate(e); err != nil {
			res.Failures[entryName(e, i)] = err
			log.Warn("skipping invalid preload entry",
				slog.Int("index", i),
				slog.Any("error", err),
			)
			continue
		}

		f := &facts.Fact{
			ThreadID: e.Thread,
			Key:      e.Key,
			Value:    e.Value,
			Identity: e.Identity,
			Domain:   e.Domain,
			Tags:     e.Tags,
			Locked:   e.Locked,
		}
		if _, err := w.PutFact(ctx, f, e.Embed); err != nil {
			res.Failures[entryName(e, i)] = err
			log.Warn("preload entry rejected",
				slog.String("thread", e.Thread),
				slog.String("key", e.Key),
				slog.Any("error", err),
			)
			continue
		}
		res.Loaded++
	}

	log.Info("preload complete",
		slog.String("path", path),
		slog.Int("loaded", res.Loaded),
		slog.Int("failed", len(res.Failures)),
	)
	return res, nil
}

// validate checks the fields every entry must carry.
func validate(e Entry) error {
	if e.Thread == "" {
		return fmt.Errorf("preload: entry missing thread")
	}
	if e.Key == "" {
		return fmt.Errorf("preload: entry missing key")
	}
	if e.Value == "" {
		return fmt.Errorf("preload: entry %q missing value", e.Key)
	}
	return nil
}

// entryName builds the failure map key for an entry, falling back to the
// file index when the entry has no usable identity.
func entryName(e Entry, i int) string {
	if e.Thread == "" && e.Key == "" {
		return fmt.Sprintf("entry[%d]", i)
	}
	return e.Thread + "/" + e.Key
}
