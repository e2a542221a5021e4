package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/axon-agent/axon/internal/engine"
	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/logging"
	"github.com/axon-agent/axon/internal/permissions"
	"github.com/axon-agent/axon/internal/tools"
)

// handlePutFact handles PUT /api/facts: create or update one fact, with an
// optional semantic counterpart.
func (s *Server) handlePutFact(w http.ResponseWriter, r *http.Request) {
	var req putFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Thread == "" || req.Key == "" || req.Value == "" {
		http.Error(w, "thread, key, and value are required", http.StatusBadRequest)
		return
	}

	f := &facts.Fact{
		ThreadID: req.Thread,
		Key:      req.Key,
		Value:    req.Value,
		Identity: req.Identity,
		Domain:   req.Domain,
		Tags:     req.Tags,
		Locked:   req.Locked,
	}
	state, err := s.engine.PutFact(r.Context(), f, req.Embed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toFactResponse(f, state))
}

// handleGetFact handles GET /api/facts/{key}?thread=... for one fact.
func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	thread := r.URL.Query().Get("thread")
	if thread == "" {
		http.Error(w, "thread query parameter is required", http.StatusBadRequest)
		return
	}

	f, err := s.engine.GetFact(r.Context(), thread, r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFactResponse(f, f.EmbedState))
}

// handleListFacts handles GET /api/facts?thread=...&domain=...&tag=...
func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	thread := q.Get("thread")
	if thread == "" {
		http.Error(w, "thread query parameter is required", http.StatusBadRequest)
		return
	}

	list, err := s.engine.ListFacts(r.Context(), thread, q.Get("domain"), q.Get("tag"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]factResponse, 0, len(list))
	for _, f := range list {
		out = append(out, toFactResponse(f, f.EmbedState))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteFact handles DELETE /api/facts/{key}?thread=... The fact and
// its vector record go together; a failed cascade keeps both.
func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	thread := r.URL.Query().Get("thread")
	if thread == "" {
		http.Error(w, "thread query parameter is required", http.StatusBadRequest)
		return
	}

	if err := s.engine.DeleteFact(r.Context(), thread, r.PathValue("key")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLockFact handles POST /api/facts/{key}/lock.
func (s *Server) handleLockFact(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Thread == "" {
		http.Error(w, "thread is required", http.StatusBadRequest)
		return
	}

	if err := s.engine.SetLocked(r.Context(), req.Thread, r.PathValue("key"), req.Locked); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": req.Locked})
}

// handleRecall handles POST /api/recall: the hybrid retrieval path.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Thread == "" {
		http.Error(w, "thread is required", http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	results, err := s.engine.Retrieve(r.Context(), engine.RetrieveRequest{
		ThreadID: req.Thread,
		Query:    req.Query,
		K:        req.K,
		Domain:   req.Domain,
		Tag:      req.Tag,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]recallResult, 0, len(results))
	for _, res := range results {
		out = append(out, recallResult{
			Key:         res.Key,
			Value:       res.Value,
			Domain:      res.Domain,
			Score:       res.Score,
			VectorScore: res.VectorScore,
			Locked:      res.Locked,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListTools handles GET /api/tools: the registered tool descriptors
// with their health classification.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	type toolEntry struct {
		Name         string   `json:"name"`
		Transport    string   `json:"transport"`
		Capabilities []string `json:"capabilities,omitempty"`
		Health       string   `json:"health"`
	}

	tracker := s.engine.Tracker()
	descs := s.engine.Registry().List()
	out := make([]toolEntry, 0, len(descs))
	for _, d := range descs {
		out = append(out, toolEntry{
			Name:         d.Name,
			Transport:    string(d.Transport),
			Capabilities: d.Capabilities,
			Health:       string(tracker.Stats(d.Name).Health),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleToolCall handles POST /api/tools/call: dispatch one tool invocation
// on behalf of the core subject.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tool == "" {
		http.Error(w, "tool is required", http.StatusBadRequest)
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	resp, err := s.engine.CallTool(r.Context(), req.Tool, req.Args, timeout)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps engine and registry errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, facts.ErrNotFound), errors.Is(err, tools.ErrUnknownTool):
		status = http.StatusNotFound
	case errors.Is(err, facts.ErrLockViolation), errors.Is(err, engine.ErrSyncConflict):
		status = http.StatusConflict
	case errors.Is(err, permissions.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, tools.ErrToolTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, tools.ErrToolUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, tools.ErrInvalidManifest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.Any("error", err))
	}
	http.Error(w, err.Error(), status)
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// toFactResponse converts a stored fact to its API shape.
func toFactResponse(f *facts.Fact, state facts.EmbedState) factResponse {
	return factResponse{
		Thread:     f.ThreadID,
		Key:        f.Key,
		Value:      f.Value,
		Identity:   f.Identity,
		Domain:     f.Domain,
		Tags:       f.Tags,
		Locked:     f.Locked,
		EmbedState: string(state),
		UpdatedAt:  f.UpdatedAt,
	}
}
