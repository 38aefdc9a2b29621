// Package orchestrator owns the provider registry and drives the multi-turn
// conversation loop between the operator, the chat model, and the connected
// tool providers.
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vitalink/vitalink/internal/appconfig"
	"github.com/vitalink/vitalink/internal/catalog"
	"github.com/vitalink/vitalink/internal/llm"
	"github.com/vitalink/vitalink/internal/logging"
	"github.com/vitalink/vitalink/internal/session"
	"github.com/vitalink/vitalink/internal/transport"
)

// followupRounds bounds how many additional completion rounds may follow a
// round that dispatched tool calls. Raising it requires revisiting the
// transcript-size and latency consequences of deeper chains.
const followupRounds = 1

// Provider is the per-session surface the orchestrator dispatches against.
type Provider interface {
	ListTools(ctx context.Context) ([]session.ToolDescriptor, error)
	ListResources(ctx context.Context) ([]session.ResourceDescriptor, error)
	Invoke(ctx context.Context, name string, args map[string]any) (session.InvocationResult, error)
	ReadResource(ctx context.Context, name string, args map[string]any) (session.ResourceContent, error)
	Close() error
}

// Orchestrator connects providers, caches their capabilities, and processes
// operator queries. The registry is mutated only while connecting; query
// processing is serialized by the interactive loop and reads it as-is.
type Orchestrator struct {
	completer llm.Completer
	catalog   *catalog.Catalog
	sessions  map[string]Provider
}

// New returns an orchestrator with no providers connected.
func New(completer llm.Completer) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		catalog:   catalog.New(),
		sessions:  make(map[string]Provider),
	}
}

// ConnectProvider opens the configured transport, performs the handshake, and
// rebuilds the provider's catalog entry from its advertised capabilities.
func (o *Orchestrator) ConnectProvider(ctx context.Context, cfg appconfig.Provider) error {
	binding, err := transport.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect %q: %w", cfg.Name, err)
	}

	sess, err := session.Connect(ctx, cfg.Name, binding)
	if err != nil {
		binding.Close()
		return fmt.Errorf("connect %q: %w", cfg.Name, err)
	}

	if err := o.register(ctx, cfg.Name, sess); err != nil {
		sess.Close()
		return fmt.Errorf("connect %q: %w", cfg.Name, err)
	}

	logging.LogEvent("Connected to provider %q (%s)", cfg.Name, cfg.Kind)
	return nil
}

// register replaces any previous session for the name and rebuilds the
// catalog entry wholesale from a fresh capability listing.
func (o *Orchestrator) register(ctx context.Context, name string, p Provider) error {
	tools, err := p.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	resources, err := p.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	if previous, ok := o.sessions[name]; ok {
		previous.Close()
	}
	o.sessions[name] = p
	o.catalog.SetProvider(name, tools, resources)
	return nil
}

// Providers returns the connected provider names in connect order.
func (o *Orchestrator) Providers() []string {
	return o.catalog.Providers()
}

// Descriptors returns the flattened model-facing function list.
func (o *Orchestrator) Descriptors() []catalog.Descriptor {
	return o.catalog.Descriptors()
}

// Close shuts down every connected session. Safe to call more than once;
// sessions close their transports exactly once.
func (o *Orchestrator) Close() error {
	var errs []error
	for name, sess := range o.sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ProcessQuery runs one full turn: a fresh transcript seeded with the query,
// a model turn, in-order dispatch of any requested invocations, and at most
// one follow-up model turn over the tool results. The returned string is the
// newline-joined output accumulator; the transcript does not survive the
// call.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string) (string, error) {
	transcript := []llm.Message{{Role: "user", Content: text}}
	tools := o.toolDefinitions()

	var output []string

	resp, err := o.completer.Complete(ctx, transcript, tools)
	if err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		if resp.Content != "" {
			output = append(output, resp.Content)
		}
		if len(resp.ToolCalls) == 0 || round >= followupRounds {
			break
		}

		// Sequential dispatch in the order received keeps the
		// transcript deterministic.
		for _, call := range resp.ToolCalls {
			result := o.dispatch(ctx, call)
			output = append(output, fmt.Sprintf("[%s] %s", call.Function.Name, result))
			transcript = append(transcript,
				llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{call}},
				llm.Message{Role: "tool", ToolCallID: call.ID, Content: result},
			)
		}

		resp, err = o.completer.Complete(ctx, transcript, tools)
		if err != nil {
			return "", err
		}
	}

	return strings.Join(output, "\n"), nil
}

// dispatch resolves one model-issued invocation request and renders its
// outcome as text. Failures of any kind are folded into the returned text so
// the turn keeps going.
func (o *Orchestrator) dispatch(ctx context.Context, call llm.ToolCall) string {
	routed, err := catalog.ParseCall(call.Function.Name)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments for %s: %v", call.Function.Name, err)
		}
	}

	if routed.Kind == catalog.RouteListResources {
		// Answered from the cached catalog, no provider round-trip.
		return o.catalog.ResourceSummary(routed.Provider)
	}

	sess, connected := o.sessions[routed.Provider]
	if !connected {
		return fmt.Sprintf("error: provider %q is not connected", routed.Provider)
	}

	switch routed.Kind {
	case catalog.RouteReadResource:
		logging.LogRequest("VITALINK->MCP", routed.Provider, "", routed.Resource, []byte(call.Function.Arguments))
		content, err := sess.ReadResource(ctx, routed.Resource, args)
		if err != nil {
			return fmt.Sprintf("error reading resource %q: %v", routed.Resource, err)
		}
		return renderResource(content)
	default:
		logging.LogRequest("VITALINK->MCP", routed.Provider, "", routed.Tool, []byte(call.Function.Arguments))
		result, err := sess.Invoke(ctx, routed.Tool, args)
		if err != nil {
			return fmt.Sprintf("error invoking %q: %v", routed.Tool, err)
		}
		return renderInvocation(result)
	}
}

// toolDefinitions converts the catalog into the chat-function wire shape.
func (o *Orchestrator) toolDefinitions() []llm.ToolDefinition {
	descriptors := o.catalog.Descriptors()
	defs := make([]llm.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return defs
}

// renderInvocation collapses an invocation result to text. Binary parts are
// replaced with a descriptive placeholder; raw bytes never reach the
// transcript or the terminal.
func renderInvocation(result session.InvocationResult) string {
	var parts []string
	for _, part := range result.Content {
		switch part.Type {
		case "text":
			parts = append(parts, part.Text)
		case "image", "binary":
			parts = append(parts, binaryPlaceholder(part.Type, part.MimeType, part.Data))
		default:
			parts = append(parts, fmt.Sprintf("[unsupported content type %q]", part.Type))
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		text = "(empty result)"
	}
	if result.IsError {
		return "error: " + text
	}
	return text
}

// renderResource collapses a resource read to text.
func renderResource(content session.ResourceContent) string {
	var parts []string
	for _, part := range content.Contents {
		switch {
		case part.Text != "":
			parts = append(parts, part.Text)
		case part.Blob != "":
			parts = append(parts, binaryPlaceholder("binary", part.MimeType, part.Blob))
		}
	}
	if len(parts) == 0 {
		return "(empty resource)"
	}
	return strings.Join(parts, "\n")
}

// binaryPlaceholder describes a base64 payload without inlining it.
func binaryPlaceholder(kind, mimeType, data string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	size := len(data)
	if decoded, err := base64.StdEncoding.DecodeString(data); err == nil {
		size = len(decoded)
	}
	return fmt.Sprintf("[%s %s (%d bytes)]", kind, mimeType, size)
}
