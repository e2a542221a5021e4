// Package server implements the HTTP server that exposes the Axon engine
// via a REST API: fact CRUD, hybrid recall, tool dispatch, and health.
// The server is started by the `axon serve` CLI command.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axon-agent/axon/internal/engine"
	"github.com/axon-agent/axon/internal/logging"
)

// New constructs a Server from the provided engine and config.
func New(eng *engine.Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 7600
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover the slowest allowed tool call.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		engine:  eng,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.Registry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: AXON_API_KEY not set — API authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	api := http.NewServeMux()
	api.HandleFunc("PUT /api/facts", s.handlePutFact)
	api.HandleFunc("GET /api/facts", s.handleListFacts)
	api.HandleFunc("GET /api/facts/{key}", s.handleGetFact)
	api.HandleFunc("DELETE /api/facts/{key}", s.handleDeleteFact)
	api.HandleFunc("POST /api/facts/{key}/lock", s.handleLockFact)
	api.HandleFunc("POST /api/recall", s.handleRecall)
	api.HandleFunc("GET /api/tools", s.handleListTools)
	api.HandleFunc("POST /api/tools/call", s.handleToolCall)
	api.HandleFunc("GET /api/health", s.handleHealth)
	api.HandleFunc("GET /api/ready", s.handleReady)

	root := http.NewServeMux()
	root.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(s.metrics.middleware(api, api))))
	root.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	handler := requestLogger(s.log, root)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the fully wired HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("axon server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
