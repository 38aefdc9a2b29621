// Package rates implements the currency tools backed by a fixed
// exchange-rate API.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/vitalink/vitalink/internal/mcpserver"
)

// DefaultBaseURL is the public exchange-rate backend.
const DefaultBaseURL = "https://open.er-api.com"

// requestTimeout bounds every backend call. A slow backend degrades into a
// textual "unavailable" answer rather than a protocol error.
const requestTimeout = 5 * time.Second

// Tool names advertised by the rates provider.
const (
	ConvertRateName    = "convert_rate"
	ListCurrenciesName = "list_currencies"
)

// Client fetches exchange rates.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client against baseURL, defaulting to the public
// backend when empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type ratesResponse struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

// fetchRates retrieves the rate table for one base currency.
func (c *Client) fetchRates(ctx context.Context, base string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/v6/latest/%s", c.baseURL, strings.ToUpper(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange backend returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if parsed.Result != "success" {
		return nil, fmt.Errorf("exchange backend result %q", parsed.Result)
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("exchange backend returned no rates")
	}
	return parsed.Rates, nil
}

// Convert computes amount in the target currency.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (string, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	rates, err := c.fetchRates(ctx, from)
	if err != nil {
		return "", err
	}
	rate, known := rates[to]
	if !known {
		return "", fmt.Errorf("unknown target currency %q", to)
	}
	converted := amount * rate
	return fmt.Sprintf("%.2f %s = %.2f %s (rate %.6f)", amount, from, converted, to, rate), nil
}

// Currencies lists the supported currency codes, sorted.
func (c *Client) Currencies(ctx context.Context) (string, error) {
	rates, err := c.fetchRates(ctx, "USD")
	if err != nil {
		return "", err
	}
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return fmt.Sprintf("%d supported currencies: %s", len(codes), strings.Join(codes, ", ")), nil
}

// unavailableText is what the model sees when the backend is unreachable.
// It is a successful result so the turn keeps flowing.
func unavailableText(err error) []mcpserver.ContentPart {
	return mcpserver.TextContent(fmt.Sprintf(
		"The exchange rate service is currently unavailable (%v). Ask the user to try again later.", err))
}

// Tools returns the provider's tool set.
func (c *Client) Tools() []mcpserver.Tool {
	return []mcpserver.Tool{
		{
			Name:        ConvertRateName,
			Description: "Convert an amount from one currency to another using current exchange rates.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{"type": "number", "description": "Amount to convert."},
					"from":   map[string]any{"type": "string", "description": "Source currency code, e.g. USD."},
					"to":     map[string]any{"type": "string", "description": "Target currency code, e.g. EUR."},
				},
				"required": []string{"amount", "from", "to"},
			},
			Handler: func(ctx context.Context, args map[string]any) ([]mcpserver.ContentPart, error) {
				amount, ok := args["amount"].(float64)
				if !ok {
					return nil, fmt.Errorf("amount must be a number")
				}
				from, _ := args["from"].(string)
				to, _ := args["to"].(string)
				text, err := c.Convert(ctx, amount, from, to)
				if err != nil {
					return unavailableText(err), nil
				}
				return mcpserver.TextContent(text), nil
			},
		},
		{
			Name:        ListCurrenciesName,
			Description: "List the currency codes the conversion tool supports.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(ctx context.Context, _ map[string]any) ([]mcpserver.ContentPart, error) {
				text, err := c.Currencies(ctx)
				if err != nil {
					return unavailableText(err), nil
				}
				return mcpserver.TextContent(text), nil
			},
		},
	}
}

// NewServer assembles the rates provider.
func NewServer(baseURL string) *mcpserver.Server {
	server := mcpserver.New("vitalink-rates", "0.1.0")
	for _, tool := range NewClient(baseURL).Tools() {
		server.RegisterTool(tool)
	}
	return server
}
