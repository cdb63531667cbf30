package providers

import (
	"net/http"

	"github.com/glyphworks/kbforge/llm"
)

// OllamaProvider targets a local Ollama server (or any self-hosted
// server speaking the same dialect, such as vLLM). It shares the chat
// completions wire shape with OpenAIProvider but defaults to the
// local port, treats auth as optional, and exposes no hosted
// moderation endpoint, so the client falls back to its local verdict.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint, defaulting to the
// local Ollama port.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	return resolveChatCompletionsURL(baseURL, "http://localhost:11434/v1")
}

// SetHeaders adds bearer authentication when a key is configured.
// Local servers usually run without one.
func (o *OllamaProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildRequestBody creates the request body.
func (o *OllamaProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return buildChatCompletionsBody(model, messages, temperature, maxTokens)
}

// ParseResponse extracts content from the first choice.
func (o *OllamaProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	return parseChatCompletionsResponse("ollama", body, model)
}
