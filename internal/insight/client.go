// Package insight calls an optional local LLM endpoint for traffic
// insights. The call is strictly out-of-core: any timeout or failure
// degrades to an empty result and never aborts an analysis.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/PentesterFlow/OpenProfiler/internal/errors"
	"github.com/PentesterFlow/OpenProfiler/internal/logger"
)

// Insight is one model-generated observation about a service's traffic.
type Insight struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// Client talks to an Ollama-compatible generate API. The HTTP client is
// injected so callers control transport and timeout policy.
type Client struct {
	http    *http.Client
	baseURL string
	model   string
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config holds insight client configuration.
type Config struct {
	BaseURL           string
	Model             string
	RequestsPerMinute float64
}

// DefaultConfig returns sensible defaults for a local model endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:11434",
		Model:             "llama2",
		RequestsPerMinute: 6,
	}
}

// NewClient creates an insight client. A nil httpClient falls back to a
// default with a conservative timeout.
func NewClient(httpClient *http.Client, cfg Config, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1),
		log:     log.WithComponent("insight"),
	}
}

// Available reports whether the model endpoint answers at all.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// AnalyzeTraffic asks the model for insights over a prepared traffic
// summary. On any failure it returns no insights plus a typed external-call
// error the caller logs and discards; the error is never fatal.
func (c *Client) AnalyzeTraffic(ctx context.Context, host string, summary interface{}) ([]Insight, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}

	prompt := fmt.Sprintf(`Analyze the following API traffic patterns and provide insights:

%s

Format the answer as a JSON array of objects with fields: category, severity, title, description, recommendations (array), confidence (0-1).`, payload)

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalCallError(host, "insight",
			fmt.Errorf("model endpoint returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, errors.NewExternalCallError(host, "insight", err)
	}

	insights := parseInsights(gen.Response)
	c.log.WithHost(host).Debugf("model returned %d insights", len(insights))
	return insights, nil
}

// parseInsights tolerantly extracts the JSON array from a model answer that
// may wrap it in prose.
func parseInsights(text string) []Insight {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return nil
	}

	var insights []Insight
	if err := json.Unmarshal([]byte(text[start:end+1]), &insights); err != nil {
		return nil
	}
	return insights
}
