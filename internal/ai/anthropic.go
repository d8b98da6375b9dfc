package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicClient struct {
	cfg        AnthropicConfig
	opts       BackendOptions
	httpClient *http.Client
}

func NewAnthropicClient(cfg AnthropicConfig, opts BackendOptions) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts = opts.withDefaults()
	return &AnthropicClient{cfg: cfg, opts: opts, httpClient: opts.client()}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	raw, err := postJSON(ctx, c.httpClient, c.Name(), url, map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}, messagesRequest{
		Model:       c.cfg.Model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	var parsed messagesResponse
	if err := decodeResponse(c.Name(), raw, &parsed); err != nil {
		return "", err
	}
	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &CallError{Backend: c.Name(), StatusCode: http.StatusOK, Body: string(raw), Err: fmt.Errorf("no text content in response")}
	}
	return out.String(), nil
}
