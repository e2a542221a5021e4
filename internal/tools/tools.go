// Package tools implements the Axon tool registry: descriptors for external
// tool servers, capability-gated dispatch over stdio and HTTP transports,
// and manifest-driven registration. Every dispatch records a metric sample
// with the health tracker so tool health stays observable.
//
// The registry never retries a call: tool invocations may have side effects
// that are unsafe to repeat blindly, so retry policy belongs to the caller.
package tools

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors surfaced by the registry. Callers discriminate with errors.Is.
var (
	// ErrUnknownTool is returned when no descriptor matches the name.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrToolTimeout is returned when the tool produced no response
	// within the call deadline.
	ErrToolTimeout = errors.New("tools: call timed out")
	// ErrToolUnavailable is returned on transport failure or when the
	// tool answers with an explicit error envelope.
	ErrToolUnavailable = errors.New("tools: tool unavailable")
	// ErrInvalidManifest is returned for malformed registration input.
	ErrInvalidManifest = errors.New("tools: invalid manifest")
)

// Transport selects how a tool server is reached.
type Transport string

const (
	// TransportStdio spawns the tool as a subprocess and exchanges one
	// request/response frame over its pipes.
	TransportStdio Transport = "stdio"
	// TransportHTTP posts the request envelope to the tool's URL.
	TransportHTTP Transport = "http"
)

// ProtocolVersion is the envelope version the registry speaks.
const ProtocolVersion = "1.0"

// DefaultCallTimeout bounds a call when the caller passes no timeout.
const DefaultCallTimeout = 30 * time.Second

// Descriptor describes one registered tool server. Descriptors are immutable
// for the registry's lifetime; re-registration replaces the whole descriptor
// atomically.
type Descriptor struct {
	// Name is the unique logical tool name.
	Name string
	// Transport selects stdio or http dispatch.
	Transport Transport
	// Address is the command string (stdio) or URL (http).
	Address string
	// Capabilities are the capabilities the tool declared at registration.
	Capabilities []string
}

// Request is the envelope sent to a tool server.
type Request struct {
	// ProtocolVersion is always ProtocolVersion.
	ProtocolVersion string `json:"protocol_version"`
	// ToolName is the logical tool the request targets.
	ToolName string `json:"tool_name"`
	// Arguments are the tool-specific parameters.
	Arguments map[string]any `json:"arguments"`
}

// Response is the envelope a tool server answers with. A non-null Error maps
// to ErrToolUnavailable with the message attached.
type Response struct {
	// Result is the tool-specific payload.
	Result json.RawMessage `json:"result"`
	// Error is the tool-reported failure message, null on success.
	Error *string `json:"error"`
}
