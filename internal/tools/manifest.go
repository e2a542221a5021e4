package tools

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Manifest is the registration document a tool or plugin ships with.
//
//	name: calc
//	transport: http
//	address: http://localhost:9090/call
//	permissions: [net.http, tools.call]
type Manifest struct {
	// Name is the unique tool name.
	Name string `yaml:"name"`
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport"`
	// Address is the command string (stdio) or URL (http).
	Address string `yaml:"address"`
	// Permissions are the capabilities the tool declares.
	Permissions []string `yaml:"permissions"`
}

// ParseManifest decodes and validates one manifest document. Unknown fields
// and malformed values are rejected with ErrInvalidManifest.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields so a typo'd key fails loudly instead of
	// silently granting nothing.
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("tools: manifest is empty: %w", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("tools: manifest: %v: %w", err, ErrInvalidManifest)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("tools: manifest: name is required: %w", ErrInvalidManifest)
	}
	switch Transport(m.Transport) {
	case TransportStdio, TransportHTTP:
	default:
		return nil, fmt.Errorf("tools: manifest %s: unsupported transport %q: %w",
			m.Name, m.Transport, ErrInvalidManifest)
	}
	if m.Address == "" {
		return nil, fmt.Errorf("tools: manifest %s: address is required: %w",
			m.Name, ErrInvalidManifest)
	}

	return &m, nil
}

// Descriptor converts the manifest into a registry descriptor.
func (m *Manifest) Descriptor() Descriptor {
	return Descriptor{
		Name:         m.Name,
		Transport:    Transport(m.Transport),
		Address:      m.Address,
		Capabilities: append([]string(nil), m.Permissions...),
	}
}

// LoadManifestDir parses every *.yaml / *.yml file in dir and registers the
// valid ones with the registry. Failures are isolated per entry: one bad
// manifest is logged and skipped, discovery of the remaining manifests
// continues. Returns the names registered and the per-file errors.
func LoadManifestDir(dir string, reg *Registry, log *slog.Logger) ([]string, map[string]error) {
	failures := make(map[string]error)

	entries, err := os.ReadDir(dir)
	if err != nil {
		failures[dir] = fmt.Errorf("tools: read manifest dir: %w", err)
		return nil, failures
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var registered []string
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			failures[name] = fmt.Errorf("tools: read manifest: %w", err)
			log.Warn("manifest skipped", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}

		m, err := ParseManifest(data)
		if err != nil {
			failures[name] = err
			log.Warn("manifest rejected", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}

		if err := reg.Register(m.Descriptor()); err != nil {
			failures[name] = err
			log.Warn("manifest registration failed", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		registered = append(registered, m.Name)
	}

	return registered, failures
}
