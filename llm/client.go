// Package llm provides a provider-agnostic text-completion client with
// bounded retries. Endpoints are resolved by request purpose through a
// Registry, so switching providers or models is configuration only.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/glyphworks/kbforge/metrics"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultTimeout bounds a single HTTP attempt.
const defaultTimeout = 120 * time.Second

// Client is a provider-agnostic completion client with retry support.
type Client struct {
	registry    *Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	metrics     *metrics.Set
}

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request defines a completion request. Callers provide either a
// single combined Prompt or explicit Messages; a Prompt is sent as one
// user message.
type Request struct {
	// Purpose selects the endpoint ("analysis", "generation", ...).
	Purpose string

	// Prompt is a single combined prompt. Ignored when Messages is set.
	Prompt string

	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage reports token consumption for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the completion result.
type Response struct {
	// RequestID uniquely identifies this call for log correlation.
	RequestID string

	// Content is the assistant text returned by the provider.
	Content string

	// Model is the model that produced the content.
	Model string

	// Usage contains token consumption metrics when the provider
	// reports them.
	Usage TokenUsage

	// FinishReason is the provider-reported stop reason.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithMetrics enables prometheus instrumentation of completion calls.
func WithMetrics(set *metrics.Set) ClientOption {
	return func(client *Client) {
		client.metrics = set
	}
}

// NewClient creates a client over the given endpoint registry.
func NewClient(registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, retrying transient failures up
// to the configured attempt limit. After the final attempt it returns
// a *CompletionError wrapping the last failure.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Purpose == "" {
		return nil, fmt.Errorf("purpose is required")
	}
	messages := req.Messages
	if len(messages) == 0 {
		if req.Prompt == "" {
			return nil, fmt.Errorf("prompt or messages required")
		}
		messages = []Message{{Role: "user", Content: req.Prompt}}
	}

	ep := c.registry.Resolve(req.Purpose)
	if ep == nil {
		return nil, fmt.Errorf("no endpoint configured for purpose %s", req.Purpose)
	}

	requestID := uuid.New().String()
	started := time.Now()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		attempts = attempt
		resp, err := c.doRequest(ctx, ep, messages, req.Temperature, req.MaxTokens)
		if err == nil {
			resp.RequestID = requestID
			c.metrics.ObserveCompletion(req.Purpose, ep.Provider, metrics.OutcomeOK, time.Since(started))
			c.logger.Debug("completion succeeded",
				"request_id", requestID,
				"purpose", req.Purpose,
				"model", resp.Model,
				"attempt", attempt,
				"tokens", resp.Usage.TotalTokens)
			return resp, nil
		}

		lastErr = err

		if IsFatal(err) {
			break
		}
		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("completion attempt failed, retrying",
				"request_id", requestID,
				"purpose", req.Purpose,
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				c.metrics.ObserveCompletion(req.Purpose, ep.Provider, metrics.OutcomeError, time.Since(started))
				return nil, &CompletionError{Purpose: req.Purpose, Model: ep.Model, Attempts: attempt, err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}

	c.metrics.ObserveCompletion(req.Purpose, ep.Provider, metrics.OutcomeError, time.Since(started))
	cerr := &CompletionError{Purpose: req.Purpose, Model: ep.Model, Attempts: attempts, err: lastErr}
	c.logger.Warn("completion failed",
		"request_id", requestID,
		"purpose", req.Purpose,
		"model", ep.Model,
		"attempts", attempts,
		"error", cerr)
	return nil, cerr
}

// calculateBackoff computes the exponential backoff for an attempt
// plus up to one second of jitter to avoid synchronized retries. The
// configured cap bounds the total delay, jitter included.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	scale := math.Pow(c.retryConfig.BackoffMultiplier, float64(attempt-1))
	backoff := time.Duration(float64(c.retryConfig.BackoffBase)*scale) + rand.N(time.Second)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}
	return backoff
}

// doRequest executes a single HTTP request against the endpoint.
func (c *Client) doRequest(ctx context.Context, ep *EndpointConfig, messages []Message, temperature *float64, maxTokens int) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider %q", ep.Provider))
	}

	if maxTokens <= 0 {
		maxTokens = ep.MaxTokens
	}

	url := provider.BuildURL(ep.URL)
	body, err := provider.BuildRequestBody(ep.Model, messages, temperature, maxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("sending completion request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"api_key", RedactSecret(ep.APIKey),
		"messages", len(messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("new request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, ep.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("do request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody, ep.APIKey)
	}

	resp, err := provider.ParseResponse(respBody, ep.Model)
	if err != nil {
		// Malformed bodies count as failures worth retrying
		return nil, NewTransientError(fmt.Errorf("parse response: %w", err))
	}
	if resp.Content == "" {
		return nil, NewTransientError(fmt.Errorf("empty completion from %s", ep.Provider))
	}
	return resp, nil
}

// classifyHTTPError tags a non-200 status as transient or fatal.
// Rate limiting and server errors retry; everything else, including
// auth and malformed-request failures, stops the attempt loop. The
// body excerpt is redacted before it can reach a log line.
func classifyHTTPError(statusCode int, body []byte, apiKey string) error {
	excerpt := redactIn(string(body), apiKey)
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}

	err := fmt.Errorf("completion API error (status %d): %s", statusCode, excerpt)
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
