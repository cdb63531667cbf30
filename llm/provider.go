package llm

import (
	"net/http"
	"sort"
	"sync"
)

// Provider defines the interface for completion provider adapters.
// Implementations translate the neutral message format to one wire
// shape and back.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string

	// BuildURL constructs the full completion endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific auth and version headers.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body.
	// temperature is nil to use the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the completion from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

// ModerationProvider is implemented by providers that expose a hosted
// moderation endpoint. Providers without one fall back to the client's
// local verdict.
type ModerationProvider interface {
	BuildModerationURL(baseURL string) string
	BuildModerationBody(text string) ([]byte, error)
	ParseModerationResponse(body []byte) (*Verdict, error)
}

// Adapters self-register from init, so importing the providers
// package is what makes a provider name valid in configuration.
var (
	providerMu       sync.RWMutex
	providerRegistry = make(map[string]Provider)
)

// RegisterProvider adds a provider under its Name. Later registrations
// with the same name win.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name, nil when unregistered.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
