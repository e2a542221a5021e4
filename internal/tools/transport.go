package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
)

// stdioDispatcher spawns the tool's command, writes one request envelope to
// its stdin, and reads one response envelope from its stdout. The process is
// expected to exit after answering; tool servers that stay resident belong
// behind the http transport.
type stdioDispatcher struct{}

// newStdioDispatcher returns the stdio transport implementation.
func newStdioDispatcher() *stdioDispatcher {
	return &stdioDispatcher{}
}

// Dispatch runs the descriptor's command and exchanges one frame. The
// address is split on whitespace into program and arguments — shell quoting
// is deliberately not supported, so manifests cannot smuggle in pipelines.
func (d *stdioDispatcher) Dispatch(ctx context.Context, desc *Descriptor, req *Request) (*Response, error) {
	fields := strings.Fields(desc.Address)
	if len(fields) == 0 {
		return nil, fmt.Errorf("tools: stdio %s: empty command: %w", desc.Name, ErrToolUnavailable)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("tools: stdio %s: marshal request: %w", desc.Name, err)
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("tools: stdio %s: %s: %w", desc.Name, msg, ErrToolUnavailable)
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("tools: stdio %s: decode response: %w", desc.Name, ErrToolUnavailable)
	}
	return &resp, nil
}

// httpDispatcher posts the request envelope to the tool's URL.
type httpDispatcher struct {
	// client is the shared HTTP client. Per-call deadlines come from the
	// context, so the client itself carries no timeout.
	client *http.Client
}

// newHTTPDispatcher returns the http transport implementation.
func newHTTPDispatcher() *httpDispatcher {
	return &httpDispatcher{client: &http.Client{}}
}

// Dispatch posts one request envelope and decodes the response envelope.
func (d *httpDispatcher) Dispatch(ctx context.Context, desc *Descriptor, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("tools: http %s: marshal request: %w", desc.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.Address, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tools: http %s: create request: %w", desc.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tools: http %s: %v: %w", desc.Name, err, ErrToolUnavailable)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("tools: http %s: HTTP %d: %w",
			desc.Name, httpResp.StatusCode, ErrToolUnavailable)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("tools: http %s: decode response: %w", desc.Name, ErrToolUnavailable)
	}
	return &resp, nil
}
