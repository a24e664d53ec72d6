package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/OpenProfiler/internal/session"
)

// Config holds all analyzer configuration.
type Config struct {
	// Workers bounds the per-host analysis pool for AnalyzeAllHosts.
	Workers int `json:"workers" yaml:"workers"`

	// SessionWindow is the session inactivity window before purging.
	SessionWindow time.Duration `json:"session_window" yaml:"session_window"`

	// ExampleURLs caps the example URLs kept per endpoint template.
	ExampleURLs int `json:"example_urls" yaml:"example_urls"`

	// IncludeFlows embeds the individual flow matches in session analyses.
	IncludeFlows bool `json:"include_flows" yaml:"include_flows"`

	// Flows optionally replaces the built-in flow catalog.
	Flows []FlowConfig `json:"flows,omitempty" yaml:"flows,omitempty"`

	// Insight configures the optional model-insight client.
	Insight InsightConfig `json:"insight" yaml:"insight"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// FlowConfig declares one flow template in configuration.
type FlowConfig struct {
	Name  string           `json:"name" yaml:"name"`
	Steps []FlowStepConfig `json:"steps" yaml:"steps"`
}

// FlowStepConfig declares one step of a configured flow.
type FlowStepConfig struct {
	PathPattern string `json:"path_pattern" yaml:"path_pattern"`
	Method      string `json:"method" yaml:"method"`
}

// InsightConfig configures the optional AI-insight calls.
type InsightConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	URL               string        `json:"url" yaml:"url"`
	Model             string        `json:"model" yaml:"model"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerMinute float64       `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:       8,
		SessionWindow: session.DefaultIdleWindow,
		ExampleURLs:   3,
		IncludeFlows:  false,
		Insight: InsightConfig{
			Enabled:           false,
			URL:               "http://localhost:11434",
			Model:             "llama2",
			Timeout:           120 * time.Second,
			RequestsPerMinute: 6,
		},
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.SessionWindow <= 0 {
		return fmt.Errorf("session window must be positive")
	}
	if c.ExampleURLs < 1 {
		return fmt.Errorf("example url limit must be at least 1")
	}
	for _, flow := range c.Flows {
		if flow.Name == "" {
			return fmt.Errorf("flow template requires a name")
		}
		if len(flow.Steps) == 0 {
			return fmt.Errorf("flow template %q has no steps", flow.Name)
		}
	}
	return nil
}

// FlowCatalog compiles the configured flow templates, or nil when the
// built-in catalog should be used.
func (c *Config) FlowCatalog() []session.FlowTemplate {
	if len(c.Flows) == 0 {
		return nil
	}
	catalog := make([]session.FlowTemplate, 0, len(c.Flows))
	for _, flow := range c.Flows {
		steps := make([]session.FlowStep, 0, len(flow.Steps))
		for _, step := range flow.Steps {
			steps = append(steps, session.FlowStep{
				PathPattern: step.PathPattern,
				Method:      step.Method,
			})
		}
		catalog = append(catalog, session.NewFlowTemplate(flow.Name, steps...))
	}
	return catalog
}
