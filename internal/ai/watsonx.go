package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const watsonxAPIVersion = "2023-05-28"

type WatsonxConfig struct {
	APIKey    string
	URL       string
	ProjectID string
	ModelID   string
}

// WatsonxClient calls the watsonx.ai text generation endpoint.
type WatsonxClient struct {
	cfg        WatsonxConfig
	opts       BackendOptions
	httpClient *http.Client
}

func NewWatsonxClient(cfg WatsonxConfig, opts BackendOptions) (*WatsonxClient, error) {
	if cfg.APIKey == "" || cfg.URL == "" || cfg.ProjectID == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("watsonx: api key, url, project id and model id are required")
	}
	opts = opts.withDefaults()
	return &WatsonxClient{cfg: cfg, opts: opts, httpClient: opts.client()}, nil
}

func (c *WatsonxClient) Name() string { return "watsonx" }

type watsonxRequest struct {
	ModelID    string            `json:"model_id"`
	Input      string            `json:"input"`
	Parameters watsonxParameters `json:"parameters"`
	ProjectID  string            `json:"project_id"`
}

type watsonxParameters struct {
	DecodingMethod string  `json:"decoding_method"`
	Temperature    float64 `json:"temperature"`
	MaxNewTokens   int     `json:"max_new_tokens"`
}

type watsonxResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
	} `json:"results"`
}

func (c *WatsonxClient) Generate(ctx context.Context, prompt string) (string, error) {
	url := strings.TrimRight(c.cfg.URL, "/") + "/ml/v1/text/generation?version=" + watsonxAPIVersion
	method := "greedy"
	if c.opts.Temperature > 0 {
		method = "sample"
	}
	raw, err := postJSON(ctx, c.httpClient, c.Name(), url, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, watsonxRequest{
		ModelID: c.cfg.ModelID,
		Input:   prompt,
		Parameters: watsonxParameters{
			DecodingMethod: method,
			Temperature:    c.opts.Temperature,
			MaxNewTokens:   c.opts.MaxTokens,
		},
		ProjectID: c.cfg.ProjectID,
	})
	if err != nil {
		return "", err
	}

	var parsed watsonxResponse
	if err := decodeResponse(c.Name(), raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Results) == 0 {
		return "", &CallError{Backend: c.Name(), StatusCode: http.StatusOK, Body: string(raw), Err: fmt.Errorf("empty watsonx results")}
	}
	return parsed.Results[0].GeneratedText, nil
}
