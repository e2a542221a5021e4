package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/axon-agent/axon/internal/metrics"
	"github.com/axon-agent/axon/internal/permissions"
)

// maxLateGrace bounds how long a dispatch may keep running after its caller
// has already received ErrToolTimeout. The late outcome is still recorded
// against the tool so health statistics stay accurate.
const maxLateGrace = 2 * time.Minute

// Registry resolves logical tool names to descriptors and dispatches calls
// over the configured transport, behind the permission gate. Safe for
// concurrent use; calls against the same or different tools may run
// concurrently.
type Registry struct {
	// mu guards descriptors. Call paths only read; registration swaps
	// whole entries under the write lock.
	mu sync.RWMutex
	// descriptors maps tool name to its current descriptor.
	descriptors map[string]*Descriptor

	// gate authorises callers before any dispatch.
	gate *permissions.Gate
	// tracker receives one metric sample per dispatch outcome.
	tracker *metrics.Tracker
	// dispatchers maps transport to its dispatch implementation.
	dispatchers map[Transport]dispatcher
	// log is the structured logger for registration and dispatch events.
	log *slog.Logger
}

// dispatcher sends one request envelope to a tool server and returns its
// response envelope.
type dispatcher interface {
	Dispatch(ctx context.Context, desc *Descriptor, req *Request) (*Response, error)
}

// NewRegistry constructs an empty Registry wired to the given gate and
// tracker. Both stdio and http transports are available.
func NewRegistry(gate *permissions.Gate, tracker *metrics.Tracker, log *slog.Logger) *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		gate:        gate,
		tracker:     tracker,
		dispatchers: map[Transport]dispatcher{
			TransportStdio: newStdioDispatcher(),
			TransportHTTP:  newHTTPDispatcher(),
		},
		log: log,
	}
}

// Register validates and stores the descriptor together with its permission
// grant. Registering an existing name is a hot reload: the fully built
// descriptor replaces the old one under a single lock acquisition, never a
// field-by-field mutation while calls may be in flight.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("tools: register: name must not be empty: %w", ErrInvalidManifest)
	}
	if desc.Transport != TransportStdio && desc.Transport != TransportHTTP {
		return fmt.Errorf("tools: register %s: unsupported transport %q: %w",
			desc.Name, desc.Transport, ErrInvalidManifest)
	}
	if desc.Address == "" {
		return fmt.Errorf("tools: register %s: address must not be empty: %w",
			desc.Name, ErrInvalidManifest)
	}

	caps := make([]permissions.Capability, 0, len(desc.Capabilities))
	for _, c := range desc.Capabilities {
		caps = append(caps, permissions.Capability(c))
	}
	r.gate.Register(permissions.Grant{Subject: desc.Name, Capabilities: caps})

	r.mu.Lock()
	_, replaced := r.descriptors[desc.Name]
	r.descriptors[desc.Name] = &desc
	r.mu.Unlock()

	r.log.Info("tool registered",
		slog.String("tool", desc.Name),
		slog.String("transport", string(desc.Transport)),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// Unregister removes the tool and its permission grant. Unknown names are
// ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.descriptors, name)
	r.mu.Unlock()
	r.gate.Unregister(name)
}

// Resolve returns the current descriptor for name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	desc, ok := r.descriptors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tools: resolve %q: %w", name, ErrUnknownTool)
	}
	return desc, nil
}

// List returns all registered descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call resolves the tool, checks that caller holds the tools.call
// capability, dispatches the arguments over the tool's transport, and
// records the outcome with the tracker. On timeout the caller gets
// ErrToolTimeout immediately; the in-flight transport call is not cancelled
// (there is no cooperative cancellation into a spawned process or a sent
// request) and its eventual outcome is recorded late against the same tool.
//
// Call never retries.
func (r *Registry) Call(ctx context.Context, caller, name string, args map[string]any, timeout time.Duration) (*Response, error) {
	desc, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := r.gate.Require(caller, permissions.CapToolsCall); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	req := &Request{
		ProtocolVersion: ProtocolVersion,
		ToolName:        name,
		Arguments:       args,
	}

	dispatch, ok := r.dispatchers[desc.Transport]
	if !ok {
		return nil, fmt.Errorf("tools: call %s: no dispatcher for transport %q: %w",
			name, desc.Transport, ErrToolUnavailable)
	}

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	// The dispatch context is detached from the caller's deadline: a
	// timed-out call keeps running up to maxLateGrace so its real outcome
	// can still be observed.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout+maxLateGrace)

	go func() {
		defer cancel()
		resp, derr := dispatch.Dispatch(dispatchCtx, desc, req)
		done <- outcome{resp: resp, err: derr}
	}()

	select {
	case out := <-done:
		latency := time.Since(start)
		resp, err := out.resp, out.err
		if err == nil && resp.Error != nil {
			err = fmt.Errorf("tools: call %s: %s: %w", name, *resp.Error, ErrToolUnavailable)
		}
		r.record(name, latency, err)
		if err != nil {
			return nil, err
		}
		return resp, nil

	case <-time.After(timeout):
		err := fmt.Errorf("tools: call %s: no response within %s: %w", name, timeout, ErrToolTimeout)
		r.record(name, timeout, err)

		// Record the late outcome when the transport eventually
		// finishes, attributed to the original tool.
		go func() {
			out := <-done
			latency := time.Since(start)
			lateErr := out.err
			if lateErr == nil && out.resp.Error != nil {
				lateErr = fmt.Errorf("%s: %w", *out.resp.Error, ErrToolUnavailable)
			}
			r.record(name, latency, lateErr)
			r.log.Debug("late tool outcome recorded",
				slog.String("tool", name),
				slog.Duration("latency", latency),
			)
		}()
		return nil, err
	}
}

// record appends one metric sample for a dispatch outcome.
func (r *Registry) record(tool string, latency time.Duration, err error) {
	s := metrics.Sample{
		Tool:    tool,
		Latency: latency,
		Success: err == nil,
	}
	if err != nil {
		s.Err = err.Error()
	}
	r.tracker.Record(s)
}
