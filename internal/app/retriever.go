package app

import (
	"context"
	"fmt"

	"docqa/internal/ai"
	"docqa/internal/model"
)

const DefaultTopK = 4

// Searcher is the read side of a vector index.
type Searcher interface {
	Query(vector []float32, k int) (model.RetrievalResult, error)
}

// Retriever embeds a query and returns the nearest chunks.
type Retriever struct {
	embedder ai.Embedder
	index    Searcher
	topK     int
}

func NewRetriever(embedder ai.Embedder, index Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK}
}

// Retrieve returns at most k chunks, best first. k <= 0 uses the default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (model.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	res, err := r.index.Query(vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index failed: %w", err)
	}
	return res, nil
}
