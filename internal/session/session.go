// Package session wraps one transport binding with the typed handshake and
// request/response surface of the tool-invocation protocol.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/vitalink/vitalink/internal/jsonrpc"
	"github.com/vitalink/vitalink/internal/logging"
	"github.com/vitalink/vitalink/internal/transport"
)

// ProtocolVersion is the protocol revision negotiated during the handshake.
const ProtocolVersion = "2024-11-05"

// Info identifies one party of the handshake.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDescriptor advertises one invocable tool.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ResourceDescriptor advertises one addressable resource.
type ResourceDescriptor struct {
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	ParametersSchema map[string]any `json:"parametersSchema,omitempty"`
}

// ContentPart is one typed part of an invocation result.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// InvocationResult is the provider's answer to a tool call.
type InvocationResult struct {
	Content []ContentPart `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ResourcePart is one entry of a read resource.
type ResourcePart struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ResourceContent is the provider's answer to a resource read.
type ResourceContent struct {
	Contents []ResourcePart `json:"contents"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      Info           `json:"clientInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      Info           `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

// Session is one connected provider. All calls are serialized; the protocol
// here is strict request/response with server notifications skipped inline.
type Session struct {
	name    string
	binding transport.Binding

	mu  sync.Mutex
	seq int64

	serverInfo Info

	closeOnce sync.Once
	closeErr  error
}

// Connect performs the initialize handshake over an open binding. The client
// declares prompts, resources, and tools support regardless of use.
func Connect(ctx context.Context, name string, binding transport.Binding) (*Session, error) {
	s := &Session{name: name, binding: binding}

	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      Info{Name: "vitalink-cli", Version: "0.1.0"},
		Capabilities: map[string]any{
			"prompts":   map[string]any{},
			"resources": map[string]any{},
			"tools":     map[string]any{},
		},
	}

	raw, err := s.call(ctx, "initialize", params)
	if err != nil {
		return nil, fmt.Errorf("handshake with %q: %w", name, err)
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("handshake with %q: decode result: %w", name, err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("handshake with %q: protocol version mismatch: %s != %s",
			name, result.ProtocolVersion, ProtocolVersion)
	}
	s.serverInfo = result.ServerInfo

	if err := s.notify(ctx, "notifications/initialized"); err != nil {
		return nil, fmt.Errorf("handshake with %q: %w", name, err)
	}

	logging.LogEvent("provider connected: name=%s server=%s/%s", name, result.ServerInfo.Name, result.ServerInfo.Version)
	return s, nil
}

// Name returns the provider name this session is registered under.
func (s *Session) Name() string { return s.name }

// ServerInfo returns the identity the provider reported during the handshake.
func (s *Session) ServerInfo() Info { return s.serverInfo }

// ListTools fetches the provider's tool descriptors. A provider with no
// tools yields an empty list, never an error.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		if isMethodNotFound(err) {
			return []ToolDescriptor{}, nil
		}
		return nil, fmt.Errorf("list tools on %q: %w", s.name, err)
	}
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("list tools on %q: decode result: %w", s.name, err)
	}
	if result.Tools == nil {
		result.Tools = []ToolDescriptor{}
	}
	return result.Tools, nil
}

// ListResources fetches the provider's resource descriptors. Providers that
// do not implement the method count as offering none.
func (s *Session) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	raw, err := s.call(ctx, "resources/list", nil)
	if err != nil {
		if isMethodNotFound(err) {
			return []ResourceDescriptor{}, nil
		}
		return nil, fmt.Errorf("list resources on %q: %w", s.name, err)
	}
	var result struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("list resources on %q: decode result: %w", s.name, err)
	}
	if result.Resources == nil {
		result.Resources = []ResourceDescriptor{}
	}
	return result.Resources, nil
}

// Invoke calls one tool by local name. Provider-side failures come back as
// an error; they are not retried here.
func (s *Session) Invoke(ctx context.Context, localName string, args map[string]any) (InvocationResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{"name": localName, "arguments": args}
	raw, err := s.call(ctx, "tools/call", params)
	if err != nil {
		return InvocationResult{}, fmt.Errorf("invoke %s on %q: %w", localName, s.name, err)
	}
	var result InvocationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return InvocationResult{}, fmt.Errorf("invoke %s on %q: decode result: %w", localName, s.name, err)
	}
	return result, nil
}

// ReadResource reads one resource by local name with optional parameters.
func (s *Session) ReadResource(ctx context.Context, localName string, args map[string]any) (ResourceContent, error) {
	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{"name": localName, "arguments": args}
	raw, err := s.call(ctx, "resources/read", params)
	if err != nil {
		return ResourceContent{}, fmt.Errorf("read resource %s on %q: %w", localName, s.name, err)
	}
	var result ResourceContent
	if err := json.Unmarshal(raw, &result); err != nil {
		return ResourceContent{}, fmt.Errorf("read resource %s on %q: decode result: %w", localName, s.name, err)
	}
	return result, nil
}

// Close releases the binding. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.binding.Close()
		logging.LogEvent("provider disconnected: name=%s", s.name)
	})
	return s.closeErr
}

// call sends one request and blocks for its response. Notifications and
// stale responses received in the meantime are logged and skipped.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("VITALINK->MCP", s.name, "", method, payload)

	if err := s.binding.Send(ctx, payload); err != nil {
		return nil, err
	}

	want := strconv.FormatInt(id, 10)
	for {
		raw, err := s.binding.Receive(ctx)
		if err != nil {
			return nil, err
		}

		var probe struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *jsonrpc.Error  `json:"error"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if probe.Method != "" {
			// Server-initiated request or notification; not part of this exchange.
			logging.LogEvent("provider %s: skipping server message method=%s", s.name, probe.Method)
			continue
		}
		got := jsonrpc.NormalizeID(probe.ID)
		if got != want {
			logging.LogEvent("provider %s: skipping response with unexpected id=%s", s.name, got)
			continue
		}

		logging.LogRequest("MCP->VITALINK", s.name, "", method, raw)
		if probe.Error != nil {
			return nil, probe.Error
		}
		return probe.Result, nil
	}
}

// notify sends a notification; no response is expected.
func (s *Session) notify(ctx context.Context, method string) error {
	req := jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	logging.LogRequest("VITALINK->MCP", s.name, "", method, payload)
	return s.binding.Send(ctx, payload)
}

func isMethodNotFound(err error) bool {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == jsonrpc.CodeMethodNotFound
	}
	return false
}
