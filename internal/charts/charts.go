// Package charts implements the chart-image tool and resource. The backend
// renders the image; this provider only relays it as base64.
package charts

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vitalink/vitalink/internal/biometrics"
	"github.com/vitalink/vitalink/internal/mcpserver"
)

// GetChartName is the tool name advertised by the charts provider.
const GetChartName = "get_chart"

// ChartResource is the resource name advertised by the charts provider.
const ChartResource = "chart"

const requestTimeout = 5 * time.Second

// Client fetches rendered charts from the biometric backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client; resolution order matches the biometrics
// provider so both point at the same backend by default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv(biometrics.EnvBaseURL)
	}
	if baseURL == "" {
		baseURL = biometrics.DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Fetch retrieves the rendered PNG for one metric and day, base64 encoded.
func (c *Client) Fetch(ctx context.Context, metric, date string) (string, error) {
	normalized, err := biometrics.NormalizeDate(date)
	if err != nil {
		return "", err
	}
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return "", fmt.Errorf("metric is required")
	}

	url := fmt.Sprintf("%s/v1/charts/%s/%s", c.baseURL, metric, normalized)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chart backend returned %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func chartSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"metric": map[string]any{
				"type":        "string",
				"description": "Metric to chart, e.g. heart_rate.",
			},
			"date": map[string]any{
				"type":        "string",
				"description": "Day to chart, as YYYY-MM-DD or YYYYMMDD.",
			},
		},
		"required": []string{"metric", "date"},
	}
}

// Tools returns the provider's tool set.
func (c *Client) Tools() []mcpserver.Tool {
	return []mcpserver.Tool{
		{
			Name:        GetChartName,
			Description: "Fetch a rendered chart of one metric for one day as a PNG image.",
			InputSchema: chartSchema(),
			Handler: func(ctx context.Context, args map[string]any) ([]mcpserver.ContentPart, error) {
				metric, _ := args["metric"].(string)
				date, _ := args["date"].(string)
				encoded, err := c.Fetch(ctx, metric, date)
				if err != nil {
					return nil, err
				}
				return mcpserver.ImageContent(encoded, "image/png"), nil
			},
		},
	}
}

// Resources returns the provider's resource set.
func (c *Client) Resources() []mcpserver.Resource {
	return []mcpserver.Resource{
		{
			Name:             ChartResource,
			Description:      "Rendered chart of one metric for one day.",
			ParametersSchema: chartSchema(),
			Handler: func(ctx context.Context, params map[string]any) ([]mcpserver.ResourcePart, error) {
				metric, _ := params["metric"].(string)
				date, _ := params["date"].(string)
				encoded, err := c.Fetch(ctx, metric, date)
				if err != nil {
					return nil, err
				}
				normalized, err := biometrics.NormalizeDate(date)
				if err != nil {
					return nil, err
				}
				return []mcpserver.ResourcePart{{
					URI:      fmt.Sprintf("charts://%s/%s", metric, normalized),
					MimeType: "image/png",
					Blob:     encoded,
				}}, nil
			},
		},
	}
}

// NewServer assembles the charts provider.
func NewServer(baseURL string) *mcpserver.Server {
	client := NewClient(baseURL)
	server := mcpserver.New("vitalink-charts", "0.1.0")
	for _, tool := range client.Tools() {
		server.RegisterTool(tool)
	}
	for _, resource := range client.Resources() {
		server.RegisterResource(resource)
	}
	return server
}
