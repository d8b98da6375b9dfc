package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Embedder maps text to fixed-dimension vectors. Implementations must return
// vectors of exactly Dimension() entries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

var ErrEmbeddingDimension = errors.New("embedding has unexpected dimension")

const DefaultEmbeddingTimeout = 60 * time.Second

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type OpenAIEmbedder struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("embedding api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEmbeddingTimeout
	}
	return &OpenAIEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int    { return e.cfg.Dimension }
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }

// Embed returns the embedding vector for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch returns one vector per input, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	// The API rejects empty strings; a blank chunk still needs a slot.
	input := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		input[i] = t
	}

	req := embeddingRequest{Model: e.cfg.Model, Input: input}
	if strings.HasPrefix(e.cfg.Model, "text-embedding-3") {
		req.Dimensions = e.cfg.Dimension
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	raw, err := postJSON(ctx, e.httpClient, "embedding", url, map[string]string{
		"Authorization": "Bearer " + e.cfg.APIKey,
	}, req)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := decodeResponse("embedding", raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		if len(d.Embedding) != e.cfg.Dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrEmbeddingDimension, len(d.Embedding), e.cfg.Dimension)
		}
		out[i] = d.Embedding
	}
	return out, nil
}
