// Package mcpserver is the shared server side of the tool-invocation
// protocol: a registry of tools and resources plus the stdio and SSE serving
// loops the demo providers run on.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vitalink/vitalink/internal/jsonrpc"
	"github.com/vitalink/vitalink/internal/logging"
	"github.com/vitalink/vitalink/internal/session"
)

// ContentPart is one typed part of a tool result.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ResourcePart is one entry of a resource read result.
type ResourcePart struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// TextContent wraps plain text as a single-part result.
func TextContent(text string) []ContentPart {
	return []ContentPart{{Type: "text", Text: text}}
}

// ImageContent wraps a base64 payload as a single-part image result.
func ImageContent(data, mimeType string) []ContentPart {
	return []ContentPart{{Type: "image", Data: data, MimeType: mimeType}}
}

// ToolHandler executes a tool. A returned error becomes a protocol-level
// error response; handlers that want the model to see a failure as content
// should return text instead.
type ToolHandler func(ctx context.Context, args map[string]any) ([]ContentPart, error)

// Tool binds a handler to its advertised descriptor. Arguments are validated
// against InputSchema before the handler runs.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

// ResourceHandler reads a resource with its (already validated) parameters.
type ResourceHandler func(ctx context.Context, params map[string]any) ([]ResourcePart, error)

// Resource binds a handler to its advertised descriptor.
type Resource struct {
	Name             string
	Description      string
	ParametersSchema map[string]any
	Handler          ResourceHandler
}

// Server routes protocol requests to registered tools and resources. It is
// transport-agnostic; ServeStdio and the SSE handler both drive Handle.
type Server struct {
	info session.Info

	mu        sync.RWMutex
	toolOrder []string
	tools     map[string]Tool
	resOrder  []string
	resources map[string]Resource
}

// New returns an empty server identifying itself with name and version
// during the handshake.
func New(name, version string) *Server {
	return &Server{
		info:      session.Info{Name: name, Version: version},
		tools:     make(map[string]Tool),
		resources: make(map[string]Resource),
	}
}

// RegisterTool adds or replaces a tool.
func (s *Server) RegisterTool(t Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.tools[t.Name]; !known {
		s.toolOrder = append(s.toolOrder, t.Name)
	}
	s.tools[t.Name] = t
}

// RegisterResource adds or replaces a resource.
func (s *Server) RegisterResource(r Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.resources[r.Name]; !known {
		s.resOrder = append(s.resOrder, r.Name)
	}
	s.resources[r.Name] = r
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Handle processes one decoded request and returns the response to send, or
// nil for notifications.
func (s *Server) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]any{
			"protocolVersion": session.ProtocolVersion,
			"serverInfo":      s.info,
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
		})

	case "notifications/initialized":
		return nil

	case "ping":
		return result(req.ID, map[string]any{})

	case "tools/list":
		return result(req.ID, map[string]any{"tools": s.toolDescriptors()})

	case "tools/call":
		return s.handleToolCall(ctx, req)

	case "resources/list":
		return result(req.ID, map[string]any{"resources": s.resourceDescriptors()})

	case "resources/read":
		return s.handleResourceRead(ctx, req)
	}

	return rpcError(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
}

func (s *Server) handleToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	params, resp := decodeCallParams(req)
	if resp != nil {
		return resp
	}

	s.mu.RLock()
	tool, known := s.tools[params.Name]
	s.mu.RUnlock()
	if !known {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	if err := validateArguments(tool.InputSchema, params.Arguments); err != nil {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, err.Error())
	}

	content, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		logging.LogEvent("tool %s failed: %v", params.Name, err)
		return rpcError(req.ID, jsonrpc.CodeInternalError, fmt.Sprintf("%s: %v", params.Name, err))
	}
	return result(req.ID, map[string]any{"content": content})
}

func (s *Server) handleResourceRead(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	params, resp := decodeCallParams(req)
	if resp != nil {
		return resp
	}

	s.mu.RLock()
	resource, known := s.resources[params.Name]
	s.mu.RUnlock()
	if !known {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown resource: %s", params.Name))
	}

	if err := validateArguments(resource.ParametersSchema, params.Arguments); err != nil {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, err.Error())
	}

	contents, err := resource.Handler(ctx, params.Arguments)
	if err != nil {
		logging.LogEvent("resource %s failed: %v", params.Name, err)
		return rpcError(req.ID, jsonrpc.CodeInternalError, fmt.Sprintf("%s: %v", params.Name, err))
	}
	return result(req.ID, map[string]any{"contents": contents})
}

func decodeCallParams(req *jsonrpc.Request) (callParams, *jsonrpc.Response) {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return params, rpcError(req.ID, jsonrpc.CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return params, rpcError(req.ID, jsonrpc.CodeInvalidParams, "missing name")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	return params, nil
}

func (s *Server) toolDescriptors() []session.ToolDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	descriptors := make([]session.ToolDescriptor, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		tool := s.tools[name]
		descriptors = append(descriptors, session.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return descriptors
}

func (s *Server) resourceDescriptors() []session.ResourceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	descriptors := make([]session.ResourceDescriptor, 0, len(s.resOrder))
	for _, name := range s.resOrder {
		resource := s.resources[name]
		descriptors = append(descriptors, session.ResourceDescriptor{
			Name:             resource.Name,
			Description:      resource.Description,
			ParametersSchema: resource.ParametersSchema,
		})
	}
	return descriptors
}

// validateArguments checks args against a JSON schema. A nil schema accepts
// anything.
func validateArguments(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	outcome, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if outcome.Valid() {
		return nil
	}
	var problems []string
	for _, desc := range outcome.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}

func result(id any, payload any) *jsonrpc.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return rpcError(id, jsonrpc.CodeInternalError, err.Error())
	}
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: encodeID(id), Result: body}
}

func rpcError(id any, code int, message string) *jsonrpc.Response {
	return &jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      encodeID(id),
		Error:   &jsonrpc.Error{Code: code, Message: message},
	}
}

func encodeID(id any) json.RawMessage {
	if id == nil {
		return nil
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return nil
	}
	return raw
}

// HandleRaw decodes one framed message, routes it, and returns the encoded
// response, or nil for notifications.
func (s *Server) HandleRaw(ctx context.Context, payload []byte) []byte {
	var req jsonrpc.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		out, _ := json.Marshal(rpcError(nil, jsonrpc.CodeParseError, "parse error"))
		return out
	}
	resp := s.Handle(ctx, &req)
	if resp == nil {
		return nil
	}
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(rpcError(req.ID, jsonrpc.CodeInternalError, err.Error()))
	}
	return out
}

// ServeStdio reads framed requests from r and writes framed responses to w
// until EOF or a framing failure.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)

	for {
		payload, err := jsonrpc.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		out := s.HandleRaw(ctx, payload)
		if out == nil {
			continue
		}
		if err := jsonrpc.WriteFrame(writer, out); err != nil {
			return err
		}
	}
}
