package vectorindex

import (
	"time"

	"docqa/internal/model"
)

const (
	FormatName    = "docqa-vector-index"
	FormatVersion = 1
	MetricCosine  = "cosine"
)

// Manifest describes one persisted index generation.
type Manifest struct {
	Format         string             `json:"format"`
	Version        int                `json:"version"`
	Dimension      int                `json:"dimension"`
	Metric         string             `json:"metric"`
	EmbeddingModel string             `json:"embedding_model"`
	Count          int                `json:"count"`
	NextChunkID    int64              `json:"next_chunk_id"`
	VectorsCRC32   uint32             `json:"vectors_crc32"`
	Sources        []model.SourceFile `json:"sources"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Stats is a read-only summary of the live index.
type Stats struct {
	Dir            string             `json:"dir" yaml:"dir"`
	Generation     int                `json:"generation" yaml:"generation"`
	Count          int                `json:"count" yaml:"count"`
	Dimension      int                `json:"dimension" yaml:"dimension"`
	Metric         string             `json:"metric" yaml:"metric"`
	EmbeddingModel string             `json:"embedding_model" yaml:"embedding_model"`
	NextChunkID    int64              `json:"next_chunk_id" yaml:"next_chunk_id"`
	Sources        []model.SourceFile `json:"sources" yaml:"sources"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
}
