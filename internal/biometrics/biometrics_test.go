package biometrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "2025-04-01", want: "20250401"},
		{input: "20250401", want: "20250401"},
		{input: " 2025-04-01 ", want: "20250401"},
		{input: "2025-13-01", wantErr: true},
		{input: "01-04-2025", wantErr: true},
		{input: "april fools", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeDate(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeDate(%q) = %q, want error", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeDate(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// Both date spellings must hit the identical backend path.
func TestDateSpellingsShareBackendPath(t *testing.T) {
	dashed, err := SamplesPath("2025-04-01")
	if err != nil {
		t.Fatalf("SamplesPath dashed: %v", err)
	}
	compact, err := SamplesPath("20250401")
	if err != nil {
		t.Fatalf("SamplesPath compact: %v", err)
	}
	if dashed != compact {
		t.Fatalf("paths differ: %q != %q", dashed, compact)
	}
	if dashed != "/v1/samples/20250401" {
		t.Errorf("path = %q", dashed)
	}
}

func sampleBackend(t *testing.T) (*Client, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/samples/"):
			w.Write([]byte(`{"date":"20250401","samples":[
				{"metric":"heart_rate","value":70,"unit":"bpm","recordedAt":"2025-04-01T08:00:00Z"},
				{"metric":"heart_rate","value":74,"unit":"bpm","recordedAt":"2025-04-01T12:00:00Z"},
				{"metric":"steps","value":9000,"unit":"count","recordedAt":"2025-04-01T21:00:00Z"}
			]}`))
		case r.URL.Path == "/v1/profile":
			w.Write([]byte(`{"name":"Dana","age":34,"heightCm":172,"weightKg":64.5}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), &paths
}

func TestGetSummaryAveragesPerMetric(t *testing.T) {
	client, _ := sampleBackend(t)

	var summary string
	for _, tool := range client.Tools() {
		if tool.Name != GetSummaryName {
			continue
		}
		content, err := tool.Handler(context.Background(), map[string]any{"date": "2025-04-01"})
		if err != nil {
			t.Fatalf("get_summary: %v", err)
		}
		summary = content[0].Text
	}
	if summary == "" {
		t.Fatal("get_summary tool not registered")
	}

	if !strings.Contains(summary, "heart_rate: average 72.0 bpm over 2 samples") {
		t.Errorf("summary missing averaged heart rate: %q", summary)
	}
	if !strings.Contains(summary, "steps: average 9000.0 count over 1 samples") {
		t.Errorf("summary missing steps: %q", summary)
	}
}

func TestGetSummaryMetricFilter(t *testing.T) {
	client, _ := sampleBackend(t)
	for _, tool := range client.Tools() {
		if tool.Name != GetSummaryName {
			continue
		}
		content, err := tool.Handler(context.Background(), map[string]any{
			"date": "20250401", "metric": "steps",
		})
		if err != nil {
			t.Fatalf("get_summary: %v", err)
		}
		if strings.Contains(content[0].Text, "heart_rate") {
			t.Errorf("filtered summary leaked other metrics: %q", content[0].Text)
		}
	}
}

func TestHandlersNormalizeDatesIdentically(t *testing.T) {
	client, paths := sampleBackend(t)
	for _, spelling := range []string{"2025-04-01", "20250401"} {
		if _, err := client.FetchSamples(context.Background(), spelling); err != nil {
			t.Fatalf("FetchSamples(%q): %v", spelling, err)
		}
	}
	if len(*paths) != 2 || (*paths)[0] != (*paths)[1] {
		t.Fatalf("backend paths differ: %v", *paths)
	}
}

func TestDailyLogResource(t *testing.T) {
	client, _ := sampleBackend(t)
	for _, resource := range client.Resources() {
		if resource.Name != DailyLogResource {
			continue
		}
		parts, err := resource.Handler(context.Background(), map[string]any{"date": "2025-04-01"})
		if err != nil {
			t.Fatalf("daily_log: %v", err)
		}
		if len(parts) != 1 || parts[0].URI != "biometrics://daily_log/20250401" {
			t.Errorf("parts = %+v", parts)
		}
		if parts[0].MimeType != "application/json" {
			t.Errorf("mimeType = %q", parts[0].MimeType)
		}
	}
}

func TestProfileToolAndResource(t *testing.T) {
	client, _ := sampleBackend(t)

	for _, tool := range client.Tools() {
		if tool.Name != GetProfileName {
			continue
		}
		content, err := tool.Handler(context.Background(), map[string]any{})
		if err != nil {
			t.Fatalf("get_profile: %v", err)
		}
		if !strings.Contains(content[0].Text, "Dana") {
			t.Errorf("profile text = %q", content[0].Text)
		}
	}

	for _, resource := range client.Resources() {
		if resource.Name != ProfileResource {
			continue
		}
		parts, err := resource.Handler(context.Background(), map[string]any{})
		if err != nil {
			t.Fatalf("profile resource: %v", err)
		}
		if !strings.Contains(parts[0].Text, `"name":"Dana"`) {
			t.Errorf("profile resource = %+v", parts)
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize("20250401", nil, ""); !strings.Contains(got, "No samples") {
		t.Errorf("Summarize empty = %q", got)
	}
	if got := Summarize("20250401", nil, "steps"); !strings.Contains(got, "No steps samples") {
		t.Errorf("Summarize filtered empty = %q", got)
	}
}
