package tools

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func Test_ParseManifest_Valid(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`
name: calc
transport: http
address: http://localhost:9090/call
permissions: [net.http, tools.call]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != "calc" || m.Transport != "http" || len(m.Permissions) != 2 {
		t.Errorf("manifest: %+v", m)
	}

	desc := m.Descriptor()
	if desc.Transport != TransportHTTP || desc.Address != "http://localhost:9090/call" {
		t.Errorf("descriptor: %+v", desc)
	}
}

func Test_ParseManifest_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
	}{
		{"unsupported transport", "name: x\ntransport: carrier-pigeon\naddress: coop\n"},
		{"missing name", "transport: http\naddress: http://x/\n"},
		{"missing address", "name: x\ntransport: stdio\n"},
		{"unknown field", "name: x\ntransport: http\naddress: http://x/\nextra_field: boom\n"},
		{"not yaml", "{{{{"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseManifest([]byte(tc.doc))
			if !errors.Is(err, ErrInvalidManifest) {
				t.Errorf("want ErrInvalidManifest, got %v", err)
			}
		})
	}
}

func Test_LoadManifestDir_IsolatesFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// "a-bad" sorts before "b-good": the bad manifest must not abort
	// discovery of the one after it.
	writeFile(t, filepath.Join(dir, "a-bad.yaml"),
		"name: pigeon\ntransport: carrier-pigeon\naddress: coop\n")
	writeFile(t, filepath.Join(dir, "b-good.yaml"),
		"name: calc\ntransport: http\naddress: http://localhost:9090/call\npermissions: [tools.call]\n")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "not a manifest")

	reg, _ := newTestRegistry(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	registered, failures := LoadManifestDir(dir, reg, log)

	if len(registered) != 1 || registered[0] != "calc" {
		t.Errorf("registered: %v", registered)
	}
	if len(failures) != 1 {
		t.Fatalf("failures: %v", failures)
	}
	if err := failures["a-bad.yaml"]; !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("want ErrInvalidManifest for a-bad.yaml, got %v", err)
	}

	if _, err := reg.Resolve("calc"); err != nil {
		t.Errorf("valid manifest not registered: %v", err)
	}
	if _, err := reg.Resolve("pigeon"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("rejected manifest registered anyway: %v", err)
	}
}

// writeFile writes content to path, failing the test on error.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
