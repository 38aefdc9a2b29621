// Package llm talks to an OpenAI-compatible chat-completion endpoint,
// offering the catalog's functions for automatic tool selection.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/vitalink/vitalink/internal/appconfig"
	"github.com/vitalink/vitalink/internal/logging"
)

// APIKeyEnv names the environment variable carrying the API credential.
// Startup fails fast when it is absent.
const APIKeyEnv = "VITALINK_API_KEY"

// Message is one transcript entry in chat-completion wire form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is one model-issued invocation request.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its arguments as a JSON string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one callable function offered to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Response is the first choice of one completion call.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer is the chat-completion dependency the orchestrator consumes.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)
}

// Client implements Completer against /v1/chat/completions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// NewClient builds the chat client from config and the environment credential.
func NewClient(cfg *appconfig.Config) (*Client, error) {
	apiKey := strings.TrimSpace(os.Getenv(APIKeyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", APIKeyEnv)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm.baseUrl must be configured")
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		return nil, errors.New("llm.model must be configured")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL:    baseURL,
		model:      cfg.LLM.Model,
		apiKey:     apiKey,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete issues one synchronous chat-completion call. Tool selection is
// left to the model via tool_choice auto; the call blocks the current turn.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	if len(tools) > 0 {
		payload["tools"] = formatToolsForPayload(tools)
		payload["tool_choice"] = "auto"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	logging.LogRequest("VITALINK->LLM", c.baseURL, c.model, "", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	logging.LogRequest("LLM->VITALINK", c.baseURL, c.model, "", respBody)

	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("chat completion returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result completionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{}, fmt.Errorf("decode chat completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return Response{}, errors.New("chat completion returned no choices")
	}

	choice := result.Choices[0].Message
	return Response{Content: choice.Content, ToolCalls: choice.ToolCalls}, nil
}

// formatToolsForPayload converts tool definitions into the function-calling
// wire shape.
func formatToolsForPayload(tools []ToolDefinition) []map[string]any {
	formatted := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		function := map[string]any{
			"name": tool.Name,
		}
		if tool.Description != "" {
			function["description"] = tool.Description
		}
		if tool.Parameters != nil {
			function["parameters"] = tool.Parameters
		}
		formatted = append(formatted, map[string]any{
			"type":     "function",
			"function": function,
		})
	}
	return formatted
}
