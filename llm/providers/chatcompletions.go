package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glyphworks/kbforge/llm"
)

// The chat completions wire shape is shared by every server speaking
// the OpenAI dialect. The openai and ollama adapters differ only in
// endpoint defaults, auth, and moderation support, so the marshaling
// lives here once.

// resolveChatCompletionsURL normalizes a configured base URL into the
// chat completions endpoint. A URL already ending in the endpoint path
// passes through, so configs may give either form.
func resolveChatCompletionsURL(baseURL, defaultBase string) string {
	if baseURL == "" {
		baseURL = defaultBase
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

type chatCompletionsRequest struct {
	Model       string                `json:"model"`
	Messages    []chatCompletionsTurn `json:"messages"`
	Temperature *float64              `json:"temperature,omitempty"`
	MaxTokens   *int                  `json:"max_tokens,omitempty"`
}

type chatCompletionsTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int                 `json:"index"`
		Message chatCompletionsTurn `json:"message"`
		// FinishReason reports why generation stopped ("stop", "length").
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// buildChatCompletionsBody marshals the neutral message list. System
// messages stay inline in this dialect. A nil temperature leaves the
// server default in place; zero requests determinism. max_tokens is
// omitted unless positive.
func buildChatCompletionsBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	turns := make([]chatCompletionsTurn, len(messages))
	for i, msg := range messages {
		turns[i] = chatCompletionsTurn{Role: msg.Role, Content: msg.Content}
	}

	req := chatCompletionsRequest{
		Model:       model,
		Messages:    turns,
		Temperature: temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	return json.Marshal(req)
}

// parseChatCompletionsResponse extracts the first choice. label names
// the adapter in error messages. Servers that omit the model field in
// responses get the requested model echoed back.
func parseChatCompletionsResponse(label string, body []byte, requestedModel string) (*llm.Response, error) {
	var resp chatCompletionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", label, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s response has no choices", label)
	}

	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
