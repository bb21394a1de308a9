package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/metrics"
)

// CompletionRequest is a single-turn completion addressed to a provider.
// Prompt carries the serialized clinical input; System carries the agent
// instructions including the required response schema.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Provider is a model backend that can answer one completion request
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Client fans a completion out to the configured providers in order,
// falling through to the next provider when one fails. All outbound
// calls share one rate limiter and one request timeout.
type Client struct {
	providers []Provider
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewClient builds a client from configuration. Providers without an
// API key are left out; a client with no providers is still valid and
// fails every completion with an unavailable error.
func NewClient(cfg config.AIConfig) *Client {
	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg))
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &Client{
		providers: providers,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		timeout:   timeout,
	}
}

// Configured reports whether at least one provider has credentials
func (c *Client) Configured() bool {
	return len(c.providers) > 0
}

// Providers returns the names of the configured providers in failover order
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete runs the request against each provider in order and returns
// the first successful reply along with the provider that produced it.
// The agent label is used for metrics only.
func (c *Client) Complete(ctx context.Context, agent string, req CompletionRequest) (string, string, error) {
	if len(c.providers) == 0 {
		return "", "", errors.Unavailable("no language model provider is configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", errors.Wrap(err, "rate limit wait interrupted")
	}

	var lastErr error
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		reply, err := p.Complete(callCtx, req)
		cancel()

		if err != nil {
			metrics.RecordAIRequest(agent, p.Name(), "error", time.Since(start))
			lastErr = err
			continue
		}

		metrics.RecordAIRequest(agent, p.Name(), "ok", time.Since(start))
		return reply, p.Name(), nil
	}

	return "", "", errors.Wrap(lastErr, "all language model providers failed")
}

// --- OpenAI ---

// OpenAIProvider calls the OpenAI chat completions API
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider from configuration
func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  cfg.OpenAIKey,
		model:   cfg.OpenAIModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the provider in metrics and responses
func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one chat completion constrained to a JSON object reply
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload := openAIRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}
	payload.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal completion payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build completion request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errors.Unavailable("language model provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Unavailable(fmt.Sprintf("language model provider returned %d: %s", resp.StatusCode, respBody))
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "failed to decode completion response")
	}
	if len(decoded.Choices) == 0 {
		return "", errors.Internal("completion response contained no choices")
	}

	return decoded.Choices[0].Message.Content, nil
}

// --- Anthropic ---

// AnthropicProvider calls the Anthropic messages API
type AnthropicProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewAnthropicProvider creates an Anthropic provider from configuration
func NewAnthropicProvider(cfg config.AIConfig) *AnthropicProvider {
	baseURL := cfg.AnthropicBaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		baseURL: baseURL,
		apiKey:  cfg.AnthropicKey,
		model:   cfg.AnthropicModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the provider in metrics and responses
func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []openAIMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends one message turn and returns the text reply
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	payload := anthropicRequest{
		Model:     p.model,
		System:    req.System,
		MaxTokens: maxTokens,
		Messages: []openAIMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal completion payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build completion request")
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errors.Unavailable("language model provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Unavailable(fmt.Sprintf("language model provider returned %d: %s", resp.StatusCode, respBody))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.Wrap(err, "failed to decode completion response")
	}
	for _, block := range decoded.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", errors.Internal("completion response contained no text block")
}
