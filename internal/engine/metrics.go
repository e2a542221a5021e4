package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics holds the engine's Prometheus collectors. Tool call metrics
// live in the metrics package; these cover the memory side.
type engineMetrics struct {
	// factOps counts fact store mutations by operation ("put", "delete").
	factOps *prometheus.CounterVec
	// syncConflicts counts writes failed with ErrSyncConflict.
	syncConflicts prometheus.Counter
	// degradedWrites counts embedding-requested writes that landed
	// fact-only because the embedder or the index was unavailable.
	degradedWrites prometheus.Counter
	// retrievals counts retrieval requests by completeness ("full",
	// "partial").
	retrievals *prometheus.CounterVec
}

// newEngineMetrics registers the engine collectors with reg.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)
	return &engineMetrics{
		factOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "axon_engine_fact_ops_total",
			Help: "Fact store mutations by operation.",
		}, []string{"op"}),
		syncConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "axon_engine_sync_conflicts_total",
			Help: "Writes failed because the fact/vector cascade could not complete.",
		}),
		degradedWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "axon_engine_degraded_writes_total",
			Help: "Embedding-requested writes stored fact-only due to embed failure.",
		}),
		retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "axon_engine_retrievals_total",
			Help: "Retrieval requests by completeness of the parallel read.",
		}, []string{"completeness"}),
	}
}
