// Package permissions implements the capability gate that sits in front of
// every tool and plugin dispatch. Grants are computed once at load time as
// declared capabilities minus the deny list; per-call checks are pure set
// membership with no recomputation and no side effects. Subjects that were
// never registered hold the empty capability set — deny by default.
package permissions

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPermissionDenied is returned by Require when the subject does not hold
// the needed capability.
var ErrPermissionDenied = errors.New("permissions: denied")

// Capability names a permission a tool or plugin must hold to perform a
// restricted action.
type Capability string

// Built-in capability vocabulary. Tools may declare additional
// caller-defined capabilities; nothing in the gate restricts the namespace.
const (
	// CapFSRead allows reading from the filesystem.
	CapFSRead Capability = "fs.read"
	// CapFSWrite allows writing to the filesystem.
	CapFSWrite Capability = "fs.write"
	// CapNetHTTP allows outbound HTTP requests.
	CapNetHTTP Capability = "net.http"
	// CapProcessSpawn allows spawning subprocesses.
	CapProcessSpawn Capability = "process.spawn"
	// CapMemoryRead allows reading facts and memories.
	CapMemoryRead Capability = "memory.read"
	// CapMemoryWrite allows writing facts and memories.
	CapMemoryWrite Capability = "memory.write"
	// CapToolsCall allows invoking other registered tools.
	CapToolsCall Capability = "tools.call"
)

// Grant pairs a subject with the capabilities it declared.
type Grant struct {
	// Subject is the plugin or tool name.
	Subject string
	// Capabilities are the subject's declared capabilities, before the
	// deny list is applied.
	Capabilities []Capability
}

// Gate validates capability checks against precomputed effective sets.
// It is safe for concurrent use: Register takes the write path, Check and
// Require only read.
type Gate struct {
	// mu guards effective and declared.
	mu sync.RWMutex
	// effective maps subject to its effective capability set
	// (declared − deny).
	effective map[string]map[Capability]bool
	// declared preserves each subject's original declaration so deny-list
	// updates can recompute without re-registration.
	declared map[string][]Capability
	// deny is the global deny list applied to every subject.
	deny map[Capability]bool
}

// NewGate constructs a Gate with the given global deny list.
func NewGate(deny []Capability) *Gate {
	g := &Gate{
		effective: make(map[string]map[Capability]bool),
		declared:  make(map[string][]Capability),
		deny:      make(map[Capability]bool, len(deny)),
	}
	for _, c := range deny {
		g.deny[c] = true
	}
	return g
}

// Register computes and stores the subject's effective capability set.
// Re-registering a subject replaces its grant wholesale.
func (g *Gate) Register(grant Grant) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.declared[grant.Subject] = append([]Capability(nil), grant.Capabilities...)
	g.effective[grant.Subject] = g.compute(grant.Capabilities)
}

// Unregister removes the subject entirely, restoring deny-by-default.
func (g *Gate) Unregister(subject string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.declared, subject)
	delete(g.effective, subject)
}

// Deny adds cap to the global deny list and recomputes every subject's
// effective set from its preserved declaration. Declarations themselves are
// never mutated.
func (g *Gate) Deny(cap Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deny[cap] = true
	for subject, declared := range g.declared {
		g.effective[subject] = g.compute(declared)
	}
}

// compute returns declared − deny. Caller must hold at least a read lock on
// g.deny (in practice the write lock, since compute runs on mutation paths).
func (g *Gate) compute(declared []Capability) map[Capability]bool {
	eff := make(map[Capability]bool, len(declared))
	for _, c := range declared {
		if !g.deny[c] {
			eff[c] = true
		}
	}
	return eff
}

// Check reports whether subject holds cap. Unknown subjects hold nothing.
func (g *Gate) Check(subject string, cap Capability) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.effective[subject][cap]
}

// Require returns ErrPermissionDenied (wrapped with subject and capability)
// when Check fails, nil otherwise.
func (g *Gate) Require(subject string, cap Capability) error {
	if !g.Check(subject, cap) {
		return fmt.Errorf("subject %q lacks capability %q: %w", subject, cap, ErrPermissionDenied)
	}
	return nil
}

// Capabilities returns the subject's effective capabilities, sorted order
// not guaranteed. Used by status surfaces.
func (g *Gate) Capabilities(subject string) []Capability {
	g.mu.RLock()
	defer g.mu.RUnlock()

	eff := g.effective[subject]
	out := make([]Capability, 0, len(eff))
	for c := range eff {
		out = append(out, c)
	}
	return out
}
