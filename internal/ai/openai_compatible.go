package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-3.5-turbo"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAICompatibleClient talks to any server exposing /chat/completions.
type OpenAICompatibleClient struct {
	cfg        ChatConfig
	opts       BackendOptions
	httpClient *http.Client
}

func NewOpenAICompatibleClient(cfg ChatConfig, opts BackendOptions) (*OpenAICompatibleClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	opts = opts.withDefaults()
	return &OpenAICompatibleClient{
		cfg:        cfg,
		opts:       opts,
		httpClient: opts.client(),
	}, nil
}

func (c *OpenAICompatibleClient) Name() string { return "openai" }

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message.
func (c *OpenAICompatibleClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}})
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := postJSON(ctx, c.httpClient, c.Name(), url, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	var parsed chatCompletionResponse
	if err := decodeResponse(c.Name(), raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", &CallError{Backend: c.Name(), StatusCode: http.StatusOK, Body: string(raw), Err: fmt.Errorf("empty llm choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}
