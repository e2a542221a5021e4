package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/axon-agent/axon/internal/embedder"
	"github.com/axon-agent/axon/internal/engine"
	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/vector"
)

// newTestServer builds a Server on an in-memory engine with no auth.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	fs, err := facts.Open(":memory:")
	if err != nil {
		t.Fatalf("open fact store: %v", err)
	}
	eng, err := engine.New(engine.Config{
		Facts:    fs,
		Vectors:  vector.NewMemoryStore(),
		Embedder: embedder.NewMock(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	s, err := New(eng, &Config{RateLimit: 1000, RateBurst: 1000})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// do runs one request through the fully wired handler stack.
func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func Test_Server_FactLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodPut, "/api/facts", putFactRequest{
		Thread: "t1", Key: "city", Value: "Seattle", Domain: "personal", Embed: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var put factResponse
	if err := json.NewDecoder(w.Body).Decode(&put); err != nil {
		t.Fatal(err)
	}
	if put.EmbedState != string(facts.Embedded) {
		t.Errorf("embed_state = %q, want embedded", put.EmbedState)
	}

	w = do(t, s, http.MethodGet, "/api/facts/city?thread=t1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var got factResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Value != "Seattle" {
		t.Errorf("value = %q, want Seattle", got.Value)
	}

	w = do(t, s, http.MethodDelete, "/api/facts/city?thread=t1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/api/facts/city?thread=t1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func Test_Server_LockedFactReturns409(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	if w := do(t, s, http.MethodPut, "/api/facts", putFactRequest{
		Thread: "t1", Key: "city", Value: "Portland",
	}); w.Code != http.StatusOK {
		t.Fatalf("put: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/facts/city/lock", lockRequest{
		Thread: "t1", Locked: true,
	}); w.Code != http.StatusOK {
		t.Fatalf("lock: %d", w.Code)
	}

	w := do(t, s, http.MethodPut, "/api/facts", putFactRequest{
		Thread: "t1", Key: "city", Value: "Denver",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("locked update: expected 409, got %d — body: %s", w.Code, w.Body.String())
	}
}

func Test_Server_ListFactsFiltersByDomain(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, f := range []putFactRequest{
		{Thread: "t1", Key: "city", Value: "Seattle", Domain: "personal"},
		{Thread: "t1", Key: "repo", Value: "axon", Domain: "project"},
	} {
		if w := do(t, s, http.MethodPut, "/api/facts", f); w.Code != http.StatusOK {
			t.Fatalf("put %s: %d", f.Key, w.Code)
		}
	}

	w := do(t, s, http.MethodGet, "/api/facts?thread=t1&domain=personal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list []factResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Key != "city" {
		t.Fatalf("list = %+v, want only city", list)
	}
}

func Test_Server_Recall(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	if w := do(t, s, http.MethodPut, "/api/facts", putFactRequest{
		Thread: "t1", Key: "city", Value: "Seattle", Embed: true,
	}); w.Code != http.StatusOK {
		t.Fatalf("put: %d", w.Code)
	}

	w := do(t, s, http.MethodPost, "/api/recall", recallRequest{
		Thread: "t1", Query: "city", K: 5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("recall: expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var results []recallResult
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Key != "city" {
		t.Fatalf("results = %+v, want one city hit", results)
	}
}

func Test_Server_UnknownToolReturns404(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/tools/call", toolCallRequest{Tool: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d — body: %s", w.Code, w.Body.String())
	}
}

func Test_Server_HealthIncludesToolStates(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func Test_Server_ReadyReportsFailedProbe(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.pingers = []Pinger{
		&fakePinger{name: "facts"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	}

	w := do(t, s, http.MethodGet, "/api/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Ready {
		t.Error("ready = true with a failing probe")
	}
	if len(resp.Checks) != 2 || resp.Checks[1].OK {
		t.Fatalf("checks = %+v", resp.Checks)
	}
}

func Test_Server_AuthProtectsAPIRoutes(t *testing.T) {
	t.Parallel()

	fs, err := facts.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(engine.Config{
		Facts:    fs,
		Vectors:  vector.NewMemoryStore(),
		Embedder: embedder.NewMock(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	s, err := New(eng, &Config{APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.stopRL)

	req := httptest.NewRequest(http.MethodGet, "/api/facts?thread=t1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/facts?thread=t1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func Test_Server_MetricsEndpointUnauthenticated(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
}
