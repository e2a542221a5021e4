// Package metrics tracks per-tool call latency and failure statistics for
// the Axon tool registry. Every dispatch records exactly one Sample; health
// classification is recomputed from the current rolling window on each query,
// never latched, so a tool that recovers is reclassified as soon as new
// successes arrive.
//
// Aggregates are additionally exported as Prometheus metrics registered
// against an injected Registerer so tests stay hermetic.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultWindowSize is the number of recent samples retained per tool when
// no explicit window size is configured.
const DefaultWindowSize = 256

// Health classification thresholds. Classification runs over the current
// window only.
const (
	// healthySuccessRate and healthyMaxAvgLatency bound the healthy state.
	healthySuccessRate   = 0.99
	healthyMaxAvgLatency = 100 * time.Millisecond
	// degradedSuccessRate and degradedMaxAvgLatency bound the degraded state.
	degradedSuccessRate   = 0.95
	degradedMaxAvgLatency = 500 * time.Millisecond
)

// State is a tool's health classification.
type State string

const (
	// StateHealthy: success rate ≥ 0.99 and average latency < 100ms.
	StateHealthy State = "healthy"
	// StateDegraded: success rate ≥ 0.95 and average latency < 500ms.
	StateDegraded State = "degraded"
	// StateUnhealthy: everything below degraded.
	StateUnhealthy State = "unhealthy"
	// StateUnknown: no samples recorded yet.
	StateUnknown State = "unknown"
)

// Sample is one recorded tool call outcome. Samples are immutable once
// appended.
type Sample struct {
	// Tool is the tool the call was dispatched to. Late-arriving outcomes
	// are recorded against the tool of the original request.
	Tool string
	// Latency is the observed call duration.
	Latency time.Duration
	// Success reports whether the call completed without error.
	Success bool
	// Err is the error string for failed calls, empty otherwise.
	Err string
	// Timestamp is when the outcome was observed.
	Timestamp time.Time
}

// ServerStats is the derived statistics view for one tool.
type ServerStats struct {
	// Tool is the tool name.
	Tool string
	// TotalCalls counts every call ever recorded, beyond the window.
	TotalCalls int64
	// WindowCalls counts the samples currently in the rolling window.
	WindowCalls int
	// SuccessRate is the fraction of window samples that succeeded, in [0,1].
	SuccessRate float64
	// AvgLatency, MinLatency, MaxLatency summarise window latencies.
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
	// P50, P95, P99 are latency percentiles over the sorted window.
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	// LastSuccess and LastFailure are the most recent outcome timestamps
	// (zero when none observed).
	LastSuccess time.Time
	LastFailure time.Time
	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int
	// Health is the classification derived from the window.
	Health State
}

// HealthSummary buckets every tracked tool into exactly one state.
type HealthSummary struct {
	Healthy   []string
	Degraded  []string
	Unhealthy []string
	Unknown   []string
}

// FailureAnalysis groups a tool's windowed failures by error string.
type FailureAnalysis struct {
	// Tool is the tool name.
	Tool string
	// TotalFailures counts failed samples in the window.
	TotalFailures int
	// ErrorCounts maps error string to occurrence count.
	ErrorCounts map[string]int
	// Recent holds up to the last 10 failed samples, oldest first.
	Recent []Sample
}

// Tracker records samples and serves derived statistics. Safe for concurrent
// use: recording appends under the write lock, queries read a snapshot.
type Tracker struct {
	// mu guards tools.
	mu sync.RWMutex
	// tools maps tool name to its sample window and counters.
	tools map[string]*toolWindow
	// windowSize is the per-tool rolling window capacity.
	windowSize int
	// prom holds the Prometheus collectors, nil when not exporting.
	prom *promMetrics
}

// toolWindow is the per-tool state: a bounded ring of recent samples plus
// running counters that outlive window eviction.
type toolWindow struct {
	// samples is the rolling window, oldest first.
	samples []Sample
	// totalCalls counts every sample ever recorded for the tool.
	totalCalls int64
	// consecutiveFailures counts failures since the last success.
	consecutiveFailures int
	// lastSuccess and lastFailure are the most recent outcome times.
	lastSuccess time.Time
	lastFailure time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindowSize sets the per-tool rolling window capacity.
func WithWindowSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.windowSize = n
		}
	}
}

// WithRegisterer enables Prometheus export against reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(t *Tracker) {
		t.prom = newPromMetrics(reg)
	}
}

// NewTracker constructs a Tracker with the given options.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		tools:      make(map[string]*toolWindow),
		windowSize: DefaultWindowSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends one sample. A zero Timestamp is filled with the current time.
func (t *Tracker) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	t.mu.Lock()
	w, ok := t.tools[s.Tool]
	if !ok {
		w = &toolWindow{}
		t.tools[s.Tool] = w
	}
	w.samples = append(w.samples, s)
	if len(w.samples) > t.windowSize {
		w.samples = w.samples[len(w.samples)-t.windowSize:]
	}
	w.totalCalls++
	if s.Success {
		w.consecutiveFailures = 0
		w.lastSuccess = s.Timestamp
	} else {
		w.consecutiveFailures++
		w.lastFailure = s.Timestamp
	}
	t.mu.Unlock()

	if t.prom != nil {
		t.prom.observe(s)
	}
}

// Stats returns the derived statistics for the tool. A tool with no samples
// yields zero-valued stats with Health == StateUnknown.
func (t *Tracker) Stats(tool string) ServerStats {
	t.mu.RLock()
	w, ok := t.tools[tool]
	var snapshot []Sample
	stats := ServerStats{Tool: tool, Health: StateUnknown}
	if ok {
		snapshot = append([]Sample(nil), w.samples...)
		stats.TotalCalls = w.totalCalls
		stats.ConsecutiveFailures = w.consecutiveFailures
		stats.LastSuccess = w.lastSuccess
		stats.LastFailure = w.lastFailure
	}
	t.mu.RUnlock()

	if len(snapshot) == 0 {
		return stats
	}

	stats.WindowCalls = len(snapshot)
	var (
		successes int
		total     time.Duration
		latencies = make([]time.Duration, 0, len(snapshot))
	)
	stats.MinLatency = snapshot[0].Latency
	for _, s := range snapshot {
		if s.Success {
			successes++
		}
		total += s.Latency
		if s.Latency < stats.MinLatency {
			stats.MinLatency = s.Latency
		}
		if s.Latency > stats.MaxLatency {
			stats.MaxLatency = s.Latency
		}
		latencies = append(latencies, s.Latency)
	}

	stats.SuccessRate = float64(successes) / float64(len(snapshot))
	stats.AvgLatency = total / time.Duration(len(snapshot))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	stats.P50 = percentile(latencies, 50)
	stats.P95 = percentile(latencies, 95)
	stats.P99 = percentile(latencies, 99)

	stats.Health = classify(stats.SuccessRate, stats.AvgLatency)
	return stats
}

// classify maps a window's success rate and average latency to a State.
func classify(successRate float64, avgLatency time.Duration) State {
	switch {
	case successRate >= healthySuccessRate && avgLatency < healthyMaxAvgLatency:
		return StateHealthy
	case successRate >= degradedSuccessRate && avgLatency < degradedMaxAvgLatency:
		return StateDegraded
	default:
		return StateUnhealthy
	}
}

// percentile returns the p-th percentile of sorted latencies using the
// nearest-rank method.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// HealthSummary classifies every tracked tool into exactly one bucket.
// Classification is recomputed from the current windows on every call.
func (t *Tracker) HealthSummary() HealthSummary {
	t.mu.RLock()
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)

	var sum HealthSummary
	for _, name := range names {
		switch t.Stats(name).Health {
		case StateHealthy:
			sum.Healthy = append(sum.Healthy, name)
		case StateDegraded:
			sum.Degraded = append(sum.Degraded, name)
		case StateUnhealthy:
			sum.Unhealthy = append(sum.Unhealthy, name)
		default:
			sum.Unknown = append(sum.Unknown, name)
		}
	}
	return sum
}

// Failures returns the windowed failure analysis for the tool.
func (t *Tracker) Failures(tool string) FailureAnalysis {
	t.mu.RLock()
	var snapshot []Sample
	if w, ok := t.tools[tool]; ok {
		snapshot = append([]Sample(nil), w.samples...)
	}
	t.mu.RUnlock()

	fa := FailureAnalysis{Tool: tool, ErrorCounts: make(map[string]int)}
	for _, s := range snapshot {
		if s.Success {
			continue
		}
		fa.TotalFailures++
		msg := s.Err
		if msg == "" {
			msg = "unknown error"
		}
		fa.ErrorCounts[msg]++
		fa.Recent = append(fa.Recent, s)
	}
	if len(fa.Recent) > 10 {
		fa.Recent = fa.Recent[len(fa.Recent)-10:]
	}
	return fa
}

// Tools returns the names of all tracked tools, sorted.
func (t *Tracker) Tools() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// promMetrics holds the Prometheus collectors owned by the tracker.
type promMetrics struct {
	// callsTotal counts recorded samples, partitioned by tool and outcome.
	callsTotal *prometheus.CounterVec
	// callDuration records call latency per tool.
	callDuration *prometheus.HistogramVec
}

// newPromMetrics registers the tracker's collectors against reg.
// promauto.With(reg) keeps unit tests hermetic: each test can inject a fresh
// prometheus.NewRegistry.
func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	factory := promauto.With(reg)

	return &promMetrics{
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "axon",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool calls recorded, partitioned by tool and outcome.",
		}, []string{"tool", "outcome"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "axon",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Latency of tool calls as observed by the registry.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
	}
}

// observe updates the Prometheus collectors for one sample.
func (p *promMetrics) observe(s Sample) {
	outcome := "ok"
	if !s.Success {
		outcome = "error"
	}
	p.callsTotal.WithLabelValues(s.Tool, outcome).Inc()
	p.callDuration.WithLabelValues(s.Tool).Observe(s.Latency.Seconds())
}
