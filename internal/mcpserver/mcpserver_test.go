package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/vitalink/vitalink/internal/jsonrpc"
	"github.com/vitalink/vitalink/internal/session"
)

func newTestServer() *Server {
	s := New("test-server", "0.0.1")
	s.RegisterTool(Tool{
		Name:        "echo",
		Description: "Echo the message back.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
		Handler: func(_ context.Context, args map[string]any) ([]ContentPart, error) {
			return TextContent(fmt.Sprintf("echo: %v", args["message"])), nil
		},
	})
	s.RegisterTool(Tool{
		Name: "broken",
		Handler: func(context.Context, map[string]any) ([]ContentPart, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	})
	s.RegisterResource(Resource{
		Name:        "greeting",
		Description: "A canned greeting.",
		Handler: func(context.Context, map[string]any) ([]ResourcePart, error) {
			return []ResourcePart{{URI: "test://greeting", MimeType: "text/plain", Text: "hello"}}, nil
		},
	})
	return s
}

func request(t *testing.T, id any, method string, params any) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		t.Fatalf("NewRequest(%s): %v", method, err)
	}
	return &req
}

func decodeResult(t *testing.T, resp *jsonrpc.Response, into any) {
	t.Helper()
	if resp == nil {
		t.Fatal("nil response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, into); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestHandleInitialize(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), request(t, 1, "initialize", map[string]any{
		"protocolVersion": session.ProtocolVersion,
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
	}))

	var result struct {
		ProtocolVersion string         `json:"protocolVersion"`
		ServerInfo      session.Info   `json:"serverInfo"`
		Capabilities    map[string]any `json:"capabilities"`
	}
	decodeResult(t, resp, &result)

	if result.ProtocolVersion != session.ProtocolVersion {
		t.Errorf("protocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "test-server" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	for _, capability := range []string{"tools", "resources"} {
		if _, declared := result.Capabilities[capability]; !declared {
			t.Errorf("capability %q not declared", capability)
		}
	}
}

func TestHandleInitializedNotificationHasNoResponse(t *testing.T) {
	s := newTestServer()
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "notifications/initialized"}
	if resp := s.Handle(context.Background(), req); resp != nil {
		t.Fatalf("notification produced a response: %+v", resp)
	}
}

func TestHandleToolsListPreservesRegistrationOrder(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), request(t, 2, "tools/list", nil))

	var result struct {
		Tools []session.ToolDescriptor `json:"tools"`
	}
	decodeResult(t, resp, &result)

	if len(result.Tools) != 2 || result.Tools[0].Name != "echo" || result.Tools[1].Name != "broken" {
		t.Errorf("tools = %+v", result.Tools)
	}
	if result.Tools[0].InputSchema == nil {
		t.Error("echo inputSchema missing")
	}
}

func TestHandleToolsCall(t *testing.T) {
	s := newTestServer()

	t.Run("success", func(t *testing.T) {
		resp := s.Handle(context.Background(), request(t, 3, "tools/call", map[string]any{
			"name":      "echo",
			"arguments": map[string]any{"message": "hi"},
		}))
		var result struct {
			Content []ContentPart `json:"content"`
		}
		decodeResult(t, resp, &result)
		if len(result.Content) != 1 || result.Content[0].Text != "echo: hi" {
			t.Errorf("content = %+v", result.Content)
		}
	})

	t.Run("schema rejects missing argument", func(t *testing.T) {
		resp := s.Handle(context.Background(), request(t, 4, "tools/call", map[string]any{
			"name":      "echo",
			"arguments": map[string]any{},
		}))
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
			t.Fatalf("expected invalid-params error, got %+v", resp)
		}
		if !strings.Contains(resp.Error.Message, "message") {
			t.Errorf("error should name the missing property: %q", resp.Error.Message)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		resp := s.Handle(context.Background(), request(t, 5, "tools/call", map[string]any{
			"name": "nope",
		}))
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
			t.Fatalf("expected invalid-params error, got %+v", resp)
		}
	})

	t.Run("handler failure", func(t *testing.T) {
		resp := s.Handle(context.Background(), request(t, 6, "tools/call", map[string]any{
			"name": "broken",
		}))
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInternalError {
			t.Fatalf("expected internal error, got %+v", resp)
		}
	})
}

func TestHandleResources(t *testing.T) {
	s := newTestServer()

	resp := s.Handle(context.Background(), request(t, 7, "resources/list", nil))
	var listed struct {
		Resources []session.ResourceDescriptor `json:"resources"`
	}
	decodeResult(t, resp, &listed)
	if len(listed.Resources) != 1 || listed.Resources[0].Name != "greeting" {
		t.Errorf("resources = %+v", listed.Resources)
	}

	resp = s.Handle(context.Background(), request(t, 8, "resources/read", map[string]any{
		"name": "greeting",
	}))
	var read struct {
		Contents []ResourcePart `json:"contents"`
	}
	decodeResult(t, resp, &read)
	if len(read.Contents) != 1 || read.Contents[0].Text != "hello" {
		t.Errorf("contents = %+v", read.Contents)
	}

	resp = s.Handle(context.Background(), request(t, 9, "resources/read", map[string]any{
		"name": "missing",
	}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	s := newTestServer()
	resp := s.Handle(context.Background(), request(t, 10, "prompts/list", nil))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestServeStdioRoundTrip(t *testing.T) {
	s := newTestServer()

	var in bytes.Buffer
	writer := bufio.NewWriter(&in)
	for i, call := range []struct {
		method string
		params any
	}{
		{"initialize", map[string]any{"protocolVersion": session.ProtocolVersion}},
		{"tools/call", map[string]any{"name": "echo", "arguments": map[string]any{"message": "framed"}}},
	} {
		req, err := jsonrpc.NewRequest(i+1, call.method, call.params)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		payload, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := jsonrpc.WriteFrame(writer, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	var out bytes.Buffer
	if err := s.ServeStdio(context.Background(), &in, &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	reader := bufio.NewReader(&out)
	for i := 0; i < 2; i++ {
		payload, err := jsonrpc.ReadFrame(reader)
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		var resp jsonrpc.Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("decode response %d: %v", i, err)
		}
		if resp.Error != nil {
			t.Errorf("response %d carries error: %v", i, resp.Error)
		}
	}
}

func TestHandleRawParseError(t *testing.T) {
	s := newTestServer()
	out := s.HandleRaw(context.Background(), []byte("{not json"))
	var resp jsonrpc.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}
}
