package llm

import (
	"fmt"
	"strings"
	"sync"
)

// Purposes name the pipeline concerns that completion requests serve.
// The registry resolves a purpose to a configured endpoint, so swapping
// providers or models is a configuration change, never a code change.
const (
	PurposeAnalysis   = "analysis"
	PurposeGeneration = "generation"
	PurposePrewrite   = "prewrite"
	PurposeGapFill    = "gapfill"
	PurposeCrossQA    = "crossqa"
)

// EndpointConfig describes one completion endpoint.
type EndpointConfig struct {
	// Provider selects the wire format ("openai" or "anthropic").
	Provider string `json:"provider" yaml:"provider"`
	// URL is the service base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Model is the model identifier sent on the wire.
	Model string `json:"model" yaml:"model"`
	// APIKey authenticates requests. Never log it unredacted.
	APIKey string `json:"-" yaml:"api_key,omitempty"`
	// MaxTokens caps response length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Validate checks the endpoint is usable.
func (e *EndpointConfig) Validate() error {
	if e.Provider == "" {
		return fmt.Errorf("endpoint provider is required")
	}
	if GetProvider(e.Provider) == nil {
		return fmt.Errorf("unknown provider %q (registered: %s)", e.Provider, strings.Join(ListProviders(), ", "))
	}
	if e.Model == "" {
		return fmt.Errorf("endpoint model is required")
	}
	return nil
}

// Registry maps request purposes to endpoints, with a default endpoint
// for purposes that have no dedicated entry. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*EndpointConfig
	fallback  *EndpointConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*EndpointConfig)}
}

// SetDefault installs the endpoint used when a purpose has no entry.
func (r *Registry) SetDefault(ep *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = ep
}

// SetEndpoint installs the endpoint for a purpose, replacing any
// existing entry.
func (r *Registry) SetEndpoint(purpose string, ep *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[purpose] = ep
}

// Resolve returns the endpoint for a purpose, falling back to the
// default. Returns nil when nothing is configured.
func (r *Registry) Resolve(purpose string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ep, ok := r.endpoints[purpose]; ok {
		return ep
	}
	return r.fallback
}

// Purposes returns the purposes with dedicated endpoints.
func (r *Registry) Purposes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for p := range r.endpoints {
		out = append(out, p)
	}
	return out
}
