package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/axon-agent/axon/internal/engine"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 7600).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry served on GET /metrics and used
	// for the server's own collectors. If nil a fresh registry is created.
	Registry *prometheus.Registry
}

// Server is the HTTP server that exposes the Axon engine.
type Server struct {
	// engine is the memory and tool routing core behind every handler.
	engine *engine.Engine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the server's Prometheus collectors.
	metrics *serverMetrics
}

// putFactRequest is the JSON body for PUT /api/facts.
type putFactRequest struct {
	// Thread is the conversation thread the fact belongs to.
	Thread string `json:"thread"`
	// Key is the fact name, unique per thread.
	Key string `json:"key"`
	// Value is the fact content.
	Value string `json:"value"`
	// Identity names the speaker or source the fact was learned from.
	Identity string `json:"identity,omitempty"`
	// Domain is the fact namespace.
	Domain string `json:"domain,omitempty"`
	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`
	// Locked marks the fact immutable.
	Locked bool `json:"locked,omitempty"`
	// Embed requests a semantic counterpart for the fact.
	Embed bool `json:"embed,omitempty"`
}

// factResponse is the JSON shape of a fact in API responses.
type factResponse struct {
	Thread     string    `json:"thread"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Identity   string    `json:"identity,omitempty"`
	Domain     string    `json:"domain,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Locked     bool      `json:"locked"`
	EmbedState string    `json:"embed_state"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// lockRequest is the JSON body for POST /api/facts/{key}/lock.
type lockRequest struct {
	// Thread is the conversation thread of the fact.
	Thread string `json:"thread"`
	// Locked is the new lock state.
	Locked bool `json:"locked"`
}

// recallRequest is the JSON body for POST /api/recall.
type recallRequest struct {
	// Thread is the conversation thread to search.
	Thread string `json:"thread"`
	// Query is the natural-language query.
	Query string `json:"query"`
	// K bounds the result count.
	K int `json:"k"`
	// Domain and Tag filter results conjunctively when non-empty.
	Domain string `json:"domain,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// recallResult is one ranked hit in the recall response.
type recallResult struct {
	Key         string  `json:"key"`
	Value       string  `json:"value"`
	Domain      string  `json:"domain,omitempty"`
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	Locked      bool    `json:"locked"`
}

// toolCallRequest is the JSON body for POST /api/tools/call.
type toolCallRequest struct {
	// Tool is the registered tool name.
	Tool string `json:"tool"`
	// Args is the free-form argument object passed to the tool.
	Args map[string]any `json:"args,omitempty"`
	// TimeoutMS overrides the default per-call timeout, in milliseconds.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}
