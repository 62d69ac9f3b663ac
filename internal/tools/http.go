// Package tools implements exec.ToolHandler as a static registry of
// HTTP-backed tool calls, adapted from the teacher's
// internal/node/builtin/http_node.go (HTTPRequestNode's method/url/headers
// config, placeholder expansion, and status-driven error handling)
// generalized from that package's core.DataAdapter[T]-typed pipeline into
// chatflow's tool_call {name, args} -> string-result contract (SPEC_FULL.md
// §4.6 "tool / tools").
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowcore/chatflow/internal/provider"
)

// Binding is one registered tool's HTTP invocation plus the
// provider.ToolBinding surfaced to the model.
type Binding struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema, passed through to provider.ToolBinding

	Method  string
	URL     string // may contain {arg_name} placeholders filled from the call's args
	Headers map[string]string
	Timeout time.Duration

	// Bypass reports whether a failed call to this tool should be
	// swallowed into a synthetic error-result string instead of raised to
	// the engine's retry logic (spec.md §4.6).
	Bypass bool
}

// Registry is a static, concurrency-safe exec.ToolHandler backed by HTTP
// calls. It holds no mutable state after construction.
type Registry struct {
	client   *http.Client
	bindings map[string]Binding
}

// NewRegistry builds a Registry from bindings, keyed by Binding.Name.
func NewRegistry(client *http.Client, bindings ...Binding) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	byName := make(map[string]Binding, len(bindings))
	for _, b := range bindings {
		byName[b.Name] = b
	}
	return &Registry{client: client, bindings: byName}
}

// Invoke implements exec.ToolHandler.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	b, ok := r.bindings[name]
	if !ok {
		return "", fmt.Errorf("tool %q is not registered", name)
	}

	url := expandPlaceholders(b.URL, args)
	var body io.Reader
	if args != nil && b.Method != http.MethodGet {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(args); err != nil {
			return "", fmt.Errorf("tool %q: encode args: %w", name, err)
		}
		body = buf
	}

	reqCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, b.Method, url, body)
	if err != nil {
		return "", fmt.Errorf("tool %q: build request: %w", name, err)
	}
	for k, v := range b.Headers {
		req.Header.Set(k, expandPlaceholders(v, args))
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tool %q: request failed: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tool %q: read response: %w", name, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("tool %q: unexpected status %s: %s", name, resp.Status, truncate(string(data), 512))
	}
	return string(data), nil
}

// BypassWhenUnavailable implements exec.ToolHandler.
func (r *Registry) BypassWhenUnavailable(name string) bool {
	return r.bindings[name].Bypass
}

// Binding implements exec.ToolHandler, returning the model-facing schema
// for name.
func (r *Registry) Binding(name string) (provider.ToolBinding, bool) {
	b, ok := r.bindings[name]
	if !ok {
		return provider.ToolBinding{}, false
	}
	return provider.ToolBinding{Name: b.Name, Description: b.Description, Parameters: b.Parameters}, true
}

func expandPlaceholders(s string, args map[string]any) string {
	if args == nil || s == "" {
		return s
	}
	out := s
	for k, v := range args {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
