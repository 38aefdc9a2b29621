// Package biometrics implements the health-sample tools and resources
// against the fixed biometric backend.
package biometrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/vitalink/vitalink/internal/mcpserver"
)

// EnvBaseURL overrides the backend base URL.
const EnvBaseURL = "BIOMETRIC_API_BASE"

// DefaultBaseURL is used when the environment does not override it.
const DefaultBaseURL = "http://localhost:8090"

// Tool and resource names advertised by the biometrics provider.
const (
	GetSummaryName = "get_summary"
	GetProfileName = "get_profile"

	ProfileResource  = "profile"
	DailyLogResource = "daily_log"
)

const requestTimeout = 5 * time.Second

// NormalizeDate accepts 2006-01-02 or 20060102 and returns the compact form
// used in backend paths. Both spellings of the same day normalize to the
// same result.
func NormalizeDate(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.Format("20060102"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD or YYYYMMDD", input)
}

// SamplesPath is the backend path for one day's samples.
func SamplesPath(date string) (string, error) {
	normalized, err := NormalizeDate(date)
	if err != nil {
		return "", err
	}
	return "/v1/samples/" + normalized, nil
}

// Sample is one recorded measurement.
type Sample struct {
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	RecordedAt string  `json:"recordedAt"`
}

// Profile is the stored user profile.
type Profile struct {
	Name     string  `json:"name"`
	Age      int     `json:"age"`
	HeightCm float64 `json:"heightCm"`
	WeightKg float64 `json:"weightKg"`
}

// Client talks to the biometric backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client; an empty baseURL falls back to the environment
// override and then the default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv(EnvBaseURL)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("biometric backend returned %s for %s", resp.Status, path)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, into)
}

// FetchSamples returns all samples recorded on one day.
func (c *Client) FetchSamples(ctx context.Context, date string) ([]Sample, error) {
	path, err := SamplesPath(date)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Samples []Sample `json:"samples"`
	}
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Samples, nil
}

// FetchProfile returns the stored profile.
func (c *Client) FetchProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	err := c.get(ctx, "/v1/profile", &profile)
	return profile, err
}

// Summarize averages the day's samples per metric. When metric is non-empty
// only that metric is reported.
func Summarize(date string, samples []Sample, metric string) string {
	type accumulator struct {
		sum   float64
		count int
		unit  string
	}
	byMetric := make(map[string]*accumulator)
	var order []string
	for _, sample := range samples {
		if metric != "" && sample.Metric != metric {
			continue
		}
		acc, seen := byMetric[sample.Metric]
		if !seen {
			acc = &accumulator{unit: sample.Unit}
			byMetric[sample.Metric] = acc
			order = append(order, sample.Metric)
		}
		acc.sum += sample.Value
		acc.count++
	}

	if len(byMetric) == 0 {
		if metric != "" {
			return fmt.Sprintf("No %s samples recorded on %s.", metric, date)
		}
		return fmt.Sprintf("No samples recorded on %s.", date)
	}

	sort.Strings(order)
	lines := make([]string, 0, len(order)+1)
	lines = append(lines, fmt.Sprintf("Biometric summary for %s:", date))
	for _, name := range order {
		acc := byMetric[name]
		lines = append(lines, fmt.Sprintf("- %s: average %.1f %s over %d samples",
			name, acc.sum/float64(acc.count), acc.unit, acc.count))
	}
	return strings.Join(lines, "\n")
}

func dateSchema(required bool) map[string]any {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":        "string",
				"description": "Day to report, as YYYY-MM-DD or YYYYMMDD.",
			},
		},
	}
	if required {
		schema["required"] = []string{"date"}
	}
	return schema
}

// Tools returns the provider's tool set.
func (c *Client) Tools() []mcpserver.Tool {
	summarySchema := dateSchema(true)
	summarySchema["properties"].(map[string]any)["metric"] = map[string]any{
		"type":        "string",
		"description": "Restrict the summary to one metric, e.g. heart_rate.",
	}

	return []mcpserver.Tool{
		{
			Name:        GetSummaryName,
			Description: "Summarize the biometric samples recorded on a given day, averaged per metric.",
			InputSchema: summarySchema,
			Handler: func(ctx context.Context, args map[string]any) ([]mcpserver.ContentPart, error) {
				date, _ := args["date"].(string)
				metric, _ := args["metric"].(string)
				normalized, err := NormalizeDate(date)
				if err != nil {
					return nil, err
				}
				samples, err := c.FetchSamples(ctx, normalized)
				if err != nil {
					return nil, err
				}
				return mcpserver.TextContent(Summarize(normalized, samples, metric)), nil
			},
		},
		{
			Name:        GetProfileName,
			Description: "Fetch the stored user profile.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(ctx context.Context, _ map[string]any) ([]mcpserver.ContentPart, error) {
				profile, err := c.FetchProfile(ctx)
				if err != nil {
					return nil, err
				}
				text := fmt.Sprintf("Profile: %s, age %d, %.0f cm, %.1f kg",
					profile.Name, profile.Age, profile.HeightCm, profile.WeightKg)
				return mcpserver.TextContent(text), nil
			},
		},
	}
}

// Resources returns the provider's resource set.
func (c *Client) Resources() []mcpserver.Resource {
	return []mcpserver.Resource{
		{
			Name:        ProfileResource,
			Description: "The stored user profile as JSON.",
			ParametersSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(ctx context.Context, _ map[string]any) ([]mcpserver.ResourcePart, error) {
				profile, err := c.FetchProfile(ctx)
				if err != nil {
					return nil, err
				}
				body, err := json.Marshal(profile)
				if err != nil {
					return nil, err
				}
				return []mcpserver.ResourcePart{{
					URI:      "biometrics://profile",
					MimeType: "application/json",
					Text:     string(body),
				}}, nil
			},
		},
		{
			Name:             DailyLogResource,
			Description:      "Raw samples recorded on one day.",
			ParametersSchema: dateSchema(true),
			Handler: func(ctx context.Context, params map[string]any) ([]mcpserver.ResourcePart, error) {
				date, _ := params["date"].(string)
				normalized, err := NormalizeDate(date)
				if err != nil {
					return nil, err
				}
				samples, err := c.FetchSamples(ctx, normalized)
				if err != nil {
					return nil, err
				}
				body, err := json.Marshal(map[string]any{"date": normalized, "samples": samples})
				if err != nil {
					return nil, err
				}
				return []mcpserver.ResourcePart{{
					URI:      "biometrics://daily_log/" + normalized,
					MimeType: "application/json",
					Text:     string(body),
				}}, nil
			},
		},
	}
}

// NewServer assembles the biometrics provider.
func NewServer(baseURL string) *mcpserver.Server {
	client := NewClient(baseURL)
	server := mcpserver.New("vitalink-biometrics", "0.1.0")
	for _, tool := range client.Tools() {
		server.RegisterTool(tool)
	}
	for _, resource := range client.Resources() {
		server.RegisterResource(resource)
	}
	return server
}
