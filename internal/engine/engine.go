// Package engine wires the Axon core together: the fact store, the vector
// index, the embedder, the hybrid ranker, the tool registry, the permission
// gate, and the health tracker are all owned by one Engine value constructed
// at startup and passed explicitly to every caller that needs it. There are
// no ambient singletons.
//
// The engine's central job is keeping the two memory representations
// consistent: every vector record is created, replaced, and deleted through
// the engine, never directly by callers. The structured fact layer is
// authoritative; the semantic layer degrades gracefully when the embedder or
// the index is unreachable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/axon-agent/axon/internal/embedder"
	"github.com/axon-agent/axon/internal/facts"
	"github.com/axon-agent/axon/internal/metrics"
	"github.com/axon-agent/axon/internal/permissions"
	"github.com/axon-agent/axon/internal/rank"
	"github.com/axon-agent/axon/internal/tools"
	"github.com/axon-agent/axon/internal/vector"
)

// ErrSyncConflict is returned when the fact/vector cascade could not
// complete and the originating write was failed to avoid a dangling
// reference between the two stores.
var ErrSyncConflict = errors.New("engine: fact/vector sync conflict")

// CoreSubject is the permission subject used for first-party callers (the
// CLI and the HTTP API). It is granted the standard capability set at
// engine construction.
const CoreSubject = "core"

// DefaultReadTimeout bounds the parallel fact+vector read on the retrieval
// path. When it elapses the engine proceeds with whatever partial results
// have arrived.
const DefaultReadTimeout = 2 * time.Second

// Config carries the collaborators and knobs for constructing an Engine.
type Config struct {
	// Facts is the structured fact store.
	Facts facts.Store
	// Vectors is the semantic index.
	Vectors vector.Store
	// Embedder converts text to vectors. May be nil, which degrades every
	// embedding-requested write to fact-only storage.
	Embedder embedder.Embedder
	// Gate is the capability gate shared with the tool registry.
	Gate *permissions.Gate
	// Tracker is the health tracker shared with the tool registry.
	Tracker *metrics.Tracker
	// Ranking configures the hybrid ranker on the retrieval path.
	Ranking rank.Config
	// ReadTimeout bounds the parallel retrieval reads (0 = default).
	ReadTimeout time.Duration
	// Registerer, when non-nil, receives the engine's Prometheus
	// collectors.
	Registerer prometheus.Registerer
	// Log is the structured logger (nil = slog.Default).
	Log *slog.Logger
}

// Engine is the coordinating context for the Axon core.
type Engine struct {
	// facts is the structured store; always authoritative.
	facts facts.Store
	// vectors is the semantic index.
	vectors vector.Store
	// embed produces embeddings; nil disables the semantic layer.
	embed embedder.Embedder
	// registry dispatches tool calls.
	registry *tools.Registry
	// gate authorises tool and memory operations.
	gate *permissions.Gate
	// tracker records tool call outcomes and serves health queries.
	tracker *metrics.Tracker
	// ranking is the hybrid ranker configuration.
	ranking rank.Config
	// readTimeout bounds the parallel retrieval reads.
	readTimeout time.Duration
	// log is the engine's structured logger.
	log *slog.Logger
	// prom holds the engine's Prometheus collectors, nil when disabled.
	prom *engineMetrics
}

// New constructs an Engine from cfg. The fact store's change feed is
// attached, the tool registry is created against the shared gate and
// tracker, and the core subject receives its standard grant.
func New(cfg Config) (*Engine, error) {
	if cfg.Facts == nil {
		return nil, fmt.Errorf("engine: fact store must not be nil")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("engine: vector store must not be nil")
	}
	if cfg.Gate == nil {
		cfg.Gate = permissions.NewGate(nil)
	}
	if cfg.Tracker == nil {
		cfg.Tracker = metrics.NewTracker()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	e := &Engine{
		facts:       cfg.Facts,
		vectors:     cfg.Vectors,
		embed:       cfg.Embedder,
		gate:        cfg.Gate,
		tracker:     cfg.Tracker,
		ranking:     cfg.Ranking,
		readTimeout: cfg.ReadTimeout,
		log:         cfg.Log,
	}
	if cfg.Registerer != nil {
		e.prom = newEngineMetrics(cfg.Registerer)
	}

	e.registry = tools.NewRegistry(cfg.Gate, cfg.Tracker, cfg.Log)

	// First-party callers hold the full standard set; external plugins
	// only ever get what their manifests declare.
	cfg.Gate.Register(permissions.Grant{
		Subject: CoreSubject,
		Capabilities: []permissions.Capability{
			permissions.CapMemoryRead,
			permissions.CapMemoryWrite,
			permissions.CapToolsCall,
		},
	})

	if observed, ok := cfg.Facts.(interface{ SetObserver(func(facts.Event)) }); ok {
		observed.SetObserver(e.onFactEvent)
	}

	return e, nil
}

// CallTool dispatches a tool call on behalf of the core subject. External
// callers with their own subject identity should go through Registry
// directly.
func (e *Engine) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*tools.Response, error) {
	return e.registry.Call(ctx, CoreSubject, name, args, timeout)
}

// Registry exposes the tool registry for registration surfaces (manifest
// discovery, the CLI, the HTTP API).
func (e *Engine) Registry() *tools.Registry {
	return e.registry
}

// Tracker exposes the health tracker for status surfaces.
func (e *Engine) Tracker() *metrics.Tracker {
	return e.tracker
}

// Gate exposes the permission gate.
func (e *Engine) Gate() *permissions.Gate {
	return e.gate
}

// onFactEvent is the fact store change feed: it keeps write visibility in
// the logs and the exported counters.
func (e *Engine) onFactEvent(ev facts.Event) {
	e.log.Debug("fact mutation",
		slog.String("op", ev.Op),
		slog.String("thread", ev.ThreadID),
		slog.String("key", ev.Key),
		slog.String("domain", ev.Domain),
	)
	if e.prom != nil {
		e.prom.factOps.WithLabelValues(ev.Op).Inc()
	}
}

// Close releases the engine's stores.
func (e *Engine) Close() error {
	var errs []error
	if err := e.facts.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
