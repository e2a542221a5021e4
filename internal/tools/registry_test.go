package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/axon-agent/axon/internal/metrics"
	"github.com/axon-agent/axon/internal/permissions"
)

// testCaller is the subject used by registry tests; it is granted tools.call.
const testCaller = "core"

// newTestRegistry returns a registry whose gate grants testCaller the
// tools.call capability, plus the tracker for sample assertions.
func newTestRegistry(t *testing.T) (*Registry, *metrics.Tracker) {
	t.Helper()
	gate := permissions.NewGate(nil)
	gate.Register(permissions.Grant{
		Subject:      testCaller,
		Capabilities: []permissions.Capability{permissions.CapToolsCall},
	})
	tracker := metrics.NewTracker()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(gate, tracker, log), tracker
}

func Test_Registry_RegisterAndResolve(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	err := reg.Register(Descriptor{Name: "calc", Transport: TransportHTTP, Address: "http://localhost:1/"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	desc, err := reg.Resolve("calc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if desc.Name != "calc" || desc.Transport != TransportHTTP {
		t.Errorf("descriptor: %+v", desc)
	}

	if _, err := reg.Resolve("ghost"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("want ErrUnknownTool, got %v", err)
	}
}

func Test_Registry_RejectsUnsupportedTransport(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	err := reg.Register(Descriptor{Name: "pigeon", Transport: "carrier-pigeon", Address: "coop"})
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("want ErrInvalidManifest, got %v", err)
	}
}

func Test_Registry_HotReloadReplacesDescriptor(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	if err := reg.Register(Descriptor{Name: "calc", Transport: TransportHTTP, Address: "http://old/"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Descriptor{Name: "calc", Transport: TransportStdio, Address: "calc-server"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	desc, err := reg.Resolve("calc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if desc.Transport != TransportStdio || desc.Address != "calc-server" {
		t.Errorf("descriptor not replaced: %+v", desc)
	}
	if len(reg.List()) != 1 {
		t.Errorf("want 1 descriptor, got %d", len(reg.List()))
	}
}

func Test_Registry_HTTPCallRoundTrip(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ProtocolVersion != ProtocolVersion || req.ToolName != "calc" {
			t.Errorf("envelope: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"answer": 42},
			"error":  nil,
		})
	}))
	t.Cleanup(srv.Close)

	if err := reg.Register(Descriptor{Name: "calc", Transport: TransportHTTP, Address: srv.URL}); err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := reg.Call(context.Background(), testCaller, "calc",
		map[string]any{"expr": "6*7"}, time.Second)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	var result struct {
		Answer int `json:"answer"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Answer != 42 {
		t.Errorf("answer: want 42, got %d", result.Answer)
	}

	stats := tracker.Stats("calc")
	if stats.TotalCalls != 1 || stats.SuccessRate != 1 {
		t.Errorf("sample not recorded: %+v", stats)
	}
}

func Test_Registry_ErrorEnvelopeIsUnavailable(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": nil,
			"error":  "division by zero",
		})
	}))
	t.Cleanup(srv.Close)

	if err := reg.Register(Descriptor{Name: "calc", Transport: TransportHTTP, Address: srv.URL}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Call(context.Background(), testCaller, "calc", nil, time.Second)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("want ErrToolUnavailable, got %v", err)
	}

	stats := tracker.Stats("calc")
	if stats.SuccessRate != 0 || stats.TotalCalls != 1 {
		t.Errorf("failure sample not recorded: %+v", stats)
	}
}

func Test_Registry_CallTimeout(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "late", "error": nil})
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	if err := reg.Register(Descriptor{Name: "slow", Transport: TransportHTTP, Address: srv.URL}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Call(context.Background(), testCaller, "slow", nil, 50*time.Millisecond)
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("want ErrToolTimeout, got %v", err)
	}

	stats := tracker.Stats("slow")
	if stats.TotalCalls != 1 || stats.SuccessRate != 0 {
		t.Errorf("timeout sample not recorded: %+v", stats)
	}
}

func Test_Registry_LateOutcomeStillRecorded(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "late", "error": nil})
	}))
	t.Cleanup(srv.Close)

	if err := reg.Register(Descriptor{Name: "slow", Transport: TransportHTTP, Address: srv.URL}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Call(context.Background(), testCaller, "slow", nil, 50*time.Millisecond)
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("want ErrToolTimeout, got %v", err)
	}

	// Let the transport finish after the caller has already timed out.
	// The eventual success must land as a second sample against "slow".
	close(release)

	deadline := time.After(5 * time.Second)
	for {
		stats := tracker.Stats("slow")
		if stats.TotalCalls == 2 {
			if stats.SuccessRate != 0.5 {
				t.Errorf("want one timeout and one late success, got %+v", stats)
			}
			if stats.LastSuccess.IsZero() {
				t.Errorf("late success not reflected: %+v", stats)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("late outcome never recorded: %+v", stats)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func Test_Registry_CallWithoutCapabilityDenied(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	if err := reg.Register(Descriptor{Name: "calc", Transport: TransportHTTP, Address: "http://localhost:1/"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Call(context.Background(), "untrusted", "calc", nil, time.Second)
	if !errors.Is(err, permissions.ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}

	// Permission denials are caller errors, not dispatch outcomes: the
	// tool's health must not be dented by them.
	if stats := tracker.Stats("calc"); stats.TotalCalls != 0 {
		t.Errorf("sample recorded for denied call: %+v", stats)
	}
}

func Test_Registry_CallUnknownTool(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	_, err := reg.Call(context.Background(), testCaller, "ghost", nil, time.Second)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("want ErrUnknownTool, got %v", err)
	}
}

func Test_Registry_StdioCallRoundTrip(t *testing.T) {
	t.Parallel()
	reg, tracker := newTestRegistry(t)

	// `cat <file>` ignores stdin and emits the canned response envelope,
	// standing in for a real stdio tool server.
	respFile := filepath.Join(t.TempDir(), "response.json")
	if err := os.WriteFile(respFile, []byte(`{"result": {"ok": true}, "error": null}`), 0o600); err != nil {
		t.Fatalf("write response file: %v", err)
	}

	if err := reg.Register(Descriptor{Name: "echoer", Transport: TransportStdio, Address: "cat " + respFile}); err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := reg.Call(context.Background(), testCaller, "echoer", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error: %v", *resp.Error)
	}
	if stats := tracker.Stats("echoer"); stats.SuccessRate != 1 {
		t.Errorf("success sample not recorded: %+v", stats)
	}
}

func Test_Registry_StdioMissingBinaryIsUnavailable(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	if err := reg.Register(Descriptor{Name: "ghost-bin", Transport: TransportStdio, Address: "definitely-not-a-binary-xyz"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.Call(context.Background(), testCaller, "ghost-bin", nil, 5*time.Second)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("want ErrToolUnavailable, got %v", err)
	}
}
