package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/vitalink/vitalink/internal/llm"
	"github.com/vitalink/vitalink/internal/session"
)

// scriptedCompleter returns canned responses in order and records every
// transcript it was handed.
type scriptedCompleter struct {
	responses   []llm.Response
	transcripts [][]llm.Message
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	s.transcripts = append(s.transcripts, append([]llm.Message(nil), messages...))
	if len(s.responses) == 0 {
		return llm.Response{}, fmt.Errorf("completer script exhausted after %d calls", len(s.transcripts))
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type fakeProvider struct {
	tools     []session.ToolDescriptor
	resources []session.ResourceDescriptor

	invoke func(name string, args map[string]any) (session.InvocationResult, error)
	read   func(name string, args map[string]any) (session.ResourceContent, error)

	invocations []string
	closes      int
}

func (f *fakeProvider) ListTools(context.Context) ([]session.ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeProvider) ListResources(context.Context) ([]session.ResourceDescriptor, error) {
	return f.resources, nil
}

func (f *fakeProvider) Invoke(_ context.Context, name string, args map[string]any) (session.InvocationResult, error) {
	f.invocations = append(f.invocations, name)
	if f.invoke != nil {
		return f.invoke(name, args)
	}
	return textResult("ok"), nil
}

func (f *fakeProvider) ReadResource(_ context.Context, name string, args map[string]any) (session.ResourceContent, error) {
	f.invocations = append(f.invocations, "read:"+name)
	if f.read != nil {
		return f.read(name, args)
	}
	return session.ResourceContent{Contents: []session.ResourcePart{{Text: "resource body"}}}, nil
}

func (f *fakeProvider) Close() error {
	f.closes++
	return nil
}

func textResult(text string) session.InvocationResult {
	return session.InvocationResult{Content: []session.ContentPart{{Type: "text", Text: text}}}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func newTestOrchestrator(t *testing.T, completer llm.Completer, providers map[string]*fakeProvider) *Orchestrator {
	t.Helper()
	o := New(completer)
	for name, p := range providers {
		if err := o.register(context.Background(), name, p); err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}
	return o
}

func TestProcessQueryPlainText(t *testing.T) {
	provider := &fakeProvider{tools: []session.ToolDescriptor{{Name: "convert_rate"}}}
	completer := &scriptedCompleter{responses: []llm.Response{{Content: "just a chat answer"}}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"rates": provider})

	got, err := o.ProcessQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if got != "just a chat answer" {
		t.Errorf("output = %q", got)
	}
	if len(provider.invocations) != 0 {
		t.Errorf("provider was called %v, want no calls", provider.invocations)
	}
	if len(completer.transcripts) != 1 {
		t.Errorf("completer called %d times, want 1", len(completer.transcripts))
	}
}

func TestProcessQueryDispatchesInOrderAndPairsTranscript(t *testing.T) {
	provider := &fakeProvider{
		tools: []session.ToolDescriptor{{Name: "convert_rate"}, {Name: "list_currencies"}},
		invoke: func(name string, _ map[string]any) (session.InvocationResult, error) {
			return textResult("result of " + name), nil
		},
	}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{
			toolCall("c1", "rates__convert_rate", `{"from":"USD","to":"EUR","amount":10}`),
			toolCall("c2", "rates__list_currencies", `{}`),
			toolCall("c3", "rates__convert_rate", `{"from":"EUR","to":"GBP","amount":5}`),
		}},
		{Content: "all done"},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"rates": provider})

	got, err := o.ProcessQuery(context.Background(), "convert things")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}

	want := []string{"convert_rate", "list_currencies", "convert_rate"}
	if len(provider.invocations) != len(want) {
		t.Fatalf("invocations = %v, want %v", provider.invocations, want)
	}
	for i, name := range want {
		if provider.invocations[i] != name {
			t.Errorf("invocation %d = %q, want %q", i, provider.invocations[i], name)
		}
	}

	if !strings.Contains(got, "all done") {
		t.Errorf("output missing follow-up content: %q", got)
	}

	// The follow-up completion sees user + 3 (assistant-call, tool-result)
	// pairs, interleaved in dispatch order.
	if len(completer.transcripts) != 2 {
		t.Fatalf("completer called %d times, want 2", len(completer.transcripts))
	}
	final := completer.transcripts[1]
	if len(final) != 7 {
		t.Fatalf("final transcript has %d messages, want 7", len(final))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		assistant := final[1+2*i]
		tool := final[2+2*i]
		if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].ID != id {
			t.Errorf("pair %d assistant message = %+v", i, assistant)
		}
		if tool.Role != "tool" || tool.ToolCallID != id {
			t.Errorf("pair %d tool message = %+v", i, tool)
		}
	}
}

func TestProcessQueryUnknownProviderContinues(t *testing.T) {
	provider := &fakeProvider{tools: []session.ToolDescriptor{{Name: "convert_rate"}}}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{
			toolCall("c1", "weather__forecast", `{}`),
			toolCall("c2", "rates__convert_rate", `{}`),
		}},
		{Content: "done"},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"rates": provider})

	got, err := o.ProcessQuery(context.Background(), "mixed")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(got, `provider "weather" is not connected`) {
		t.Errorf("output missing inline error: %q", got)
	}
	if len(provider.invocations) != 1 || provider.invocations[0] != "convert_rate" {
		t.Errorf("second request was not dispatched: %v", provider.invocations)
	}
}

func TestProcessQuerySurvivesInvokeError(t *testing.T) {
	calls := 0
	provider := &fakeProvider{
		tools: []session.ToolDescriptor{{Name: "convert_rate"}},
		invoke: func(string, map[string]any) (session.InvocationResult, error) {
			calls++
			if calls == 1 {
				return session.InvocationResult{}, fmt.Errorf("upstream exploded")
			}
			return textResult("42.00 EUR"), nil
		},
	}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "rates__convert_rate", `{}`)}},
		{Content: "model reacts to failure"},
		{ToolCalls: []llm.ToolCall{toolCall("c2", "rates__convert_rate", `{}`)}},
		{Content: "model reports success"},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"rates": provider})

	got, err := o.ProcessQuery(context.Background(), "first")
	if err != nil {
		t.Fatalf("first ProcessQuery: %v", err)
	}
	if got == "" || !strings.Contains(got, "error") {
		t.Errorf("first output should carry an error indicator, got %q", got)
	}

	got, err = o.ProcessQuery(context.Background(), "second")
	if err != nil {
		t.Fatalf("second ProcessQuery: %v", err)
	}
	if !strings.Contains(got, "42.00 EUR") {
		t.Errorf("second output = %q, want successful result", got)
	}
}

func TestProcessQueryStopsAfterOneFollowupRound(t *testing.T) {
	provider := &fakeProvider{tools: []session.ToolDescriptor{{Name: "convert_rate"}}}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "rates__convert_rate", `{}`)}},
		{Content: "partial", ToolCalls: []llm.ToolCall{toolCall("c2", "rates__convert_rate", `{}`)}},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"rates": provider})

	got, err := o.ProcessQuery(context.Background(), "loop forever please")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if len(completer.transcripts) != 2 {
		t.Errorf("completer called %d times, want exactly 2", len(completer.transcripts))
	}
	if len(provider.invocations) != 1 {
		t.Errorf("invocations = %v, want only the first round dispatched", provider.invocations)
	}
	if !strings.Contains(got, "partial") {
		t.Errorf("follow-up content missing from output: %q", got)
	}
}

func TestProcessQueryAnswersListResourcesLocally(t *testing.T) {
	provider := &fakeProvider{
		tools: []session.ToolDescriptor{{Name: "get_summary"}},
		resources: []session.ResourceDescriptor{
			{Name: "profile", Description: "User profile."},
			{Name: "daily_log", ParametersSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"date": map[string]any{"type": "string"}},
			}},
		},
	}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "biometrics__listResources", `{}`)}},
		{Content: "listed"},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"biometrics": provider})

	got, err := o.ProcessQuery(context.Background(), "what resources are there")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(got, "profile") || !strings.Contains(got, "daily_log") {
		t.Errorf("output missing resource names: %q", got)
	}
	if len(provider.invocations) != 0 {
		t.Errorf("listResources must not round-trip to the provider: %v", provider.invocations)
	}
}

func TestProcessQueryReadsResources(t *testing.T) {
	var gotArgs map[string]any
	provider := &fakeProvider{
		resources: []session.ResourceDescriptor{{Name: "daily_log"}},
		read: func(name string, args map[string]any) (session.ResourceContent, error) {
			gotArgs = args
			return session.ResourceContent{Contents: []session.ResourcePart{{
				URI: "biometrics://daily_log/20250401", Text: "steps: 9000",
			}}}, nil
		},
	}
	completer := &scriptedCompleter{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "biometrics__readResource__daily_log", `{"date":"2025-04-01"}`)}},
		{Content: ""},
	}}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{"biometrics": provider})

	got, err := o.ProcessQuery(context.Background(), "read the log")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.Contains(got, "steps: 9000") {
		t.Errorf("output = %q", got)
	}
	if gotArgs["date"] != "2025-04-01" {
		t.Errorf("read args = %v", gotArgs)
	}
}

func TestRenderInvocationPlaceholders(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("pretend this is a PNG"))
	result := session.InvocationResult{Content: []session.ContentPart{
		{Type: "text", Text: "chart attached"},
		{Type: "image", Data: payload, MimeType: "image/png"},
	}}

	got := renderInvocation(result)
	if !strings.Contains(got, "chart attached") {
		t.Errorf("text part missing: %q", got)
	}
	if !strings.Contains(got, "[image image/png (21 bytes)]") {
		t.Errorf("placeholder missing or wrong: %q", got)
	}
	if strings.Contains(got, payload) {
		t.Errorf("raw base64 leaked into rendered output")
	}
}

func TestCloseClosesEverySessionOnce(t *testing.T) {
	rates := &fakeProvider{tools: []session.ToolDescriptor{{Name: "convert_rate"}}}
	biometrics := &fakeProvider{tools: []session.ToolDescriptor{{Name: "get_summary"}}}
	completer := &scriptedCompleter{}
	o := newTestOrchestrator(t, completer, map[string]*fakeProvider{
		"rates":      rates,
		"biometrics": biometrics,
	})

	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rates.closes != 1 || biometrics.closes != 1 {
		t.Errorf("closes = %d/%d, want 1/1", rates.closes, biometrics.closes)
	}
}
