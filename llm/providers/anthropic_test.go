package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/llm"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "https://api.anthropic.com/v1/messages",
		},
		{
			name:    "custom base URL",
			baseURL: "https://custom.api.com",
			want:    "https://custom.api.com/v1/messages",
		},
		{
			name:    "trailing slash handled",
			baseURL: "https://api.anthropic.com/",
			want:    "https://api.anthropic.com/v1/messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestAnthropicProvider_SetHeaders(t *testing.T) {
	p := &AnthropicProvider{}

	req, err := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	require.NoError(t, err)

	p.SetHeaders(req, "test-key-123456")
	assert.Equal(t, "test-key-123456", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))

	// No key configured: header stays unset, version still sent
	bare, err := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	require.NoError(t, err)
	p.SetHeaders(bare, "")
	assert.Empty(t, bare.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, bare.Header.Get("anthropic-version"))
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You are a technical writer."},
		{Role: "user", Content: "Draft the overview section."},
	}

	temp := 0.7
	body, err := p.BuildRequestBody("claude-test", messages, &temp, 2048)
	require.NoError(t, err)

	// System message moves to the top-level field
	assert.Contains(t, string(body), `"system":"You are a technical writer."`)
	assert.NotContains(t, string(body), `"role":"system"`)

	assert.Contains(t, string(body), `"model":"claude-test"`)
	assert.Contains(t, string(body), `"max_tokens":2048`)
	assert.Contains(t, string(body), `"role":"user"`)
}

func TestAnthropicProvider_BuildRequestBody_DefaultMaxTokens(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-test", []llm.Message{{Role: "user", Content: "Hi"}}, nil, 0)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"max_tokens":4096`)
	assert.NotContains(t, string(body), `"temperature"`)
}

func TestSplitSystemPrompt(t *testing.T) {
	system, turns := splitSystemPrompt([]llm.Message{
		{Role: "system", Content: "first instructions"},
		{Role: "user", Content: "question"},
		{Role: "system", Content: "revised instructions"},
		{Role: "assistant", Content: "answer"},
	})

	// The last system message wins; chat turns keep their order.
	assert.Equal(t, "revised instructions", system)
	require.Len(t, turns, 2)
	assert.Equal(t, anthropicTurn{Role: "user", Content: "question"}, turns[0])
	assert.Equal(t, anthropicTurn{Role: "assistant", Content: "answer"}, turns[1])
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	responseBody := []byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"content": [
			{"type": "text", "text": "## Overview\n\nBrokers replicate partitions "},
			{"type": "text", "text": "across the cluster."}
		],
		"model": "claude-test-1",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 412, "output_tokens": 96}
	}`)

	resp, err := p.ParseResponse(responseBody, "claude-test")
	require.NoError(t, err)

	// Text blocks concatenate in order.
	assert.Equal(t, "## Overview\n\nBrokers replicate partitions across the cluster.", resp.Content)
	assert.Equal(t, "claude-test-1", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 412, resp.Usage.PromptTokens)
	assert.Equal(t, 96, resp.Usage.CompletionTokens)
	assert.Equal(t, 508, resp.Usage.TotalTokens)
}

func TestAnthropicProvider_ParseResponse_SkipsNonTextBlocks(t *testing.T) {
	p := &AnthropicProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"content": [
			{"type": "text", "text": "before"},
			{"type": "tool_use", "text": "ignored"},
			{"type": "text", "text": " after"}
		],
		"model": "claude-test-1",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 5, "output_tokens": 3}
	}`), "claude-test")
	require.NoError(t, err)
	assert.Equal(t, "before after", resp.Content)
}

func TestAnthropicProvider_ParseResponse_ModelFallback(t *testing.T) {
	p := &AnthropicProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"content": [{"type": "text", "text": "Hi"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`), "claude-requested")
	require.NoError(t, err)
	assert.Equal(t, "claude-requested", resp.Model)
}

func TestAnthropicProvider_ParseResponse_Invalid(t *testing.T) {
	p := &AnthropicProvider{}

	_, err := p.ParseResponse([]byte("not json"), "claude-test")
	require.Error(t, err)
}
