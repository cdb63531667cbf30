// Package providers implements completion provider adapters.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/glyphworks/kbforge/llm"
)

// OpenAIProvider implements the OpenAI chat completions API. The same
// wire shape serves OpenAI-compatible servers (vLLM, Ollama, OpenRouter)
// by pointing the endpoint URL at them.
type OpenAIProvider struct{}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL constructs the chat completions endpoint.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	return resolveChatCompletionsURL(baseURL, "https://api.openai.com/v1")
}

// SetHeaders adds bearer authentication.
func (o *OpenAIProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildRequestBody creates the request body.
func (o *OpenAIProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	return buildChatCompletionsBody(model, messages, temperature, maxTokens)
}

// ParseResponse extracts content from the first choice.
func (o *OpenAIProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	return parseChatCompletionsResponse("openai", body, model)
}

// BuildModerationURL constructs the moderations endpoint.
func (o *OpenAIProvider) BuildModerationURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/chat/completions")
	return baseURL + "/moderations"
}

// BuildModerationBody creates the moderation request body.
func (o *OpenAIProvider) BuildModerationBody(text string) ([]byte, error) {
	return json.Marshal(map[string]string{"input": text})
}

// moderationResponse is the OpenAI moderations response format.
type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// ParseModerationResponse extracts the verdict from the first result.
func (o *OpenAIProvider) ParseModerationResponse(body []byte) (*llm.Verdict, error) {
	var resp moderationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse moderation response: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("moderation response has no results")
	}

	v := &llm.Verdict{Flagged: resp.Results[0].Flagged}
	for category, hit := range resp.Results[0].Categories {
		if hit {
			v.Categories = append(v.Categories, category)
		}
	}
	return v, nil
}
