// Package config provides configuration loading and management for
// kbforge: completion endpoints per purpose, retry policy, store and
// metrics settings, and watch-mode behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glyphworks/kbforge/llm"
)

// Config is the complete kbforge configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Store    StoreConfig    `yaml:"store"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LLMConfig configures the completion client. Default covers every
// purpose without a dedicated entry; Purposes may override analysis,
// generation, prewrite, gapfill and crossqa individually.
type LLMConfig struct {
	Default  *llm.EndpointConfig            `yaml:"default"`
	Purposes map[string]*llm.EndpointConfig `yaml:"purposes,omitempty"`
	Retry    RetryConfig                    `yaml:"retry"`
	// Timeout bounds one HTTP request, e.g. "120s".
	Timeout string `yaml:"timeout,omitempty"`
}

// RetryConfig mirrors the completion client's retry policy in
// YAML-friendly form.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts,omitempty"`
	BackoffBase       string  `yaml:"backoff_base,omitempty"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty"`
	MaxBackoff        string  `yaml:"max_backoff,omitempty"`
}

// StoreConfig configures persistence. An empty NATSURL selects the
// in-memory store.
type StoreConfig struct {
	// NATSURL is the NATS server URL (e.g. "nats://localhost:4222").
	NATSURL string `yaml:"nats_url,omitempty"`
	// ReviewSubject is the JetStream subject review requests publish to.
	ReviewSubject string `yaml:"review_subject,omitempty"`
}

// PipelineConfig holds run-level toggles.
type PipelineConfig struct {
	// DryRun disables repository writes: articles, reports, versions
	// and review requests stay in memory.
	DryRun bool `yaml:"dry_run,omitempty"`
}

// MetricsConfig configures the prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9105".
	Addr string `yaml:"addr,omitempty"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long to wait after the last write event before
	// processing a file, e.g. "500ms".
	Debounce string `yaml:"debounce,omitempty"`
	// Pattern is the doublestar glob watched files must match.
	Pattern string `yaml:"pattern,omitempty"`
}

// knownPurposes are the purpose keys accepted under llm.purposes.
var knownPurposes = map[string]bool{
	llm.PurposeAnalysis:   true,
	llm.PurposeGeneration: true,
	llm.PurposePrewrite:   true,
	llm.PurposeGapFill:    true,
	llm.PurposeCrossQA:    true,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Default: &llm.EndpointConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				APIKey:   "${OPENAI_API_KEY}",
			},
			Timeout: "120s",
		},
		Store: StoreConfig{
			ReviewSubject: "kbforge.review.requests",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
			Pattern:  "**/*.md",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.Default == nil {
		return fmt.Errorf("llm.default endpoint is required")
	}
	if err := c.LLM.Default.Validate(); err != nil {
		return fmt.Errorf("llm.default: %w", err)
	}
	for purpose, ep := range c.LLM.Purposes {
		if !knownPurposes[purpose] {
			return fmt.Errorf("llm.purposes: unknown purpose %q", purpose)
		}
		if ep == nil {
			return fmt.Errorf("llm.purposes.%s: endpoint is empty", purpose)
		}
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("llm.purposes.%s: %w", purpose, err)
		}
	}
	if c.LLM.Retry.MaxAttempts < 0 {
		return fmt.Errorf("llm.retry.max_attempts must not be negative")
	}
	for name, value := range map[string]string{
		"llm.timeout":            c.LLM.Timeout,
		"llm.retry.backoff_base": c.LLM.Retry.BackoffBase,
		"llm.retry.max_backoff":  c.LLM.Retry.MaxBackoff,
		"watch.debounce":         c.Watch.Debounce,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, value)
		}
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return parseDurationOrDefault(c.LLM.Timeout, 120*time.Second)
}

// DebounceInterval returns the watch-mode debounce window.
func (c *Config) DebounceInterval() time.Duration {
	return parseDurationOrDefault(c.Watch.Debounce, 500*time.Millisecond)
}

// RetryPolicy maps the YAML retry settings onto the client's policy,
// keeping the client defaults for unset fields.
func (c *Config) RetryPolicy() llm.RetryConfig {
	policy := llm.DefaultRetryConfig()
	if c.LLM.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.LLM.Retry.MaxAttempts
	}
	if d, err := time.ParseDuration(c.LLM.Retry.BackoffBase); err == nil && d > 0 {
		policy.BackoffBase = d
	}
	if c.LLM.Retry.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = c.LLM.Retry.BackoffMultiplier
	}
	if d, err := time.ParseDuration(c.LLM.Retry.MaxBackoff); err == nil && d > 0 {
		policy.MaxBackoff = d
	}
	return policy
}

// BuildRegistry maps the endpoint configuration onto a completion
// registry.
func (c *Config) BuildRegistry() *llm.Registry {
	reg := llm.NewRegistry()
	reg.SetDefault(c.LLM.Default)
	for purpose, ep := range c.LLM.Purposes {
		reg.SetEndpoint(purpose, ep)
	}
	return reg
}

// LoadFromFile parses a YAML config file. Keys absent from the file
// stay zero; defaults, layering and ${VAR} expansion happen in Loader.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// ExpandEnv resolves ${VAR} references in endpoint URLs, API keys and
// the store URL, so secrets can stay out of config files.
func (c *Config) ExpandEnv() {
	expand := func(ep *llm.EndpointConfig) {
		if ep == nil {
			return
		}
		ep.URL = os.ExpandEnv(ep.URL)
		ep.APIKey = os.ExpandEnv(ep.APIKey)
	}
	expand(c.LLM.Default)
	for _, ep := range c.LLM.Purposes {
		expand(ep)
	}
	c.Store.NATSURL = os.ExpandEnv(c.Store.NATSURL)
}

// SaveToFile writes the configuration to a YAML file. The file may
// hold API keys, so it is not group or world readable.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one; other takes precedence
// for set values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.LLM.Default != nil {
		c.LLM.Default = other.LLM.Default
	}
	for purpose, ep := range other.LLM.Purposes {
		if c.LLM.Purposes == nil {
			c.LLM.Purposes = make(map[string]*llm.EndpointConfig)
		}
		c.LLM.Purposes[purpose] = ep
	}
	if other.LLM.Retry.MaxAttempts != 0 {
		c.LLM.Retry.MaxAttempts = other.LLM.Retry.MaxAttempts
	}
	if other.LLM.Retry.BackoffBase != "" {
		c.LLM.Retry.BackoffBase = other.LLM.Retry.BackoffBase
	}
	if other.LLM.Retry.BackoffMultiplier != 0 {
		c.LLM.Retry.BackoffMultiplier = other.LLM.Retry.BackoffMultiplier
	}
	if other.LLM.Retry.MaxBackoff != "" {
		c.LLM.Retry.MaxBackoff = other.LLM.Retry.MaxBackoff
	}
	if other.LLM.Timeout != "" {
		c.LLM.Timeout = other.LLM.Timeout
	}

	if other.Store.NATSURL != "" {
		c.Store.NATSURL = other.Store.NATSURL
	}
	if other.Store.ReviewSubject != "" {
		c.Store.ReviewSubject = other.Store.ReviewSubject
	}

	if other.Pipeline.DryRun {
		c.Pipeline.DryRun = true
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.Pattern != "" {
		c.Watch.Pattern = other.Watch.Pattern
	}
}

// parseDurationOrDefault parses a duration string, returning the
// default when empty or invalid.
func parseDurationOrDefault(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
