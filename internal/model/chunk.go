package model

import "fmt"

// Chunk is a bounded span of page text, the unit of retrieval.
// ID is assigned when the chunk enters an index build and is unique within it.
type Chunk struct {
	ID         int64  `json:"chunk_id"`
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	PageNumber int    `json:"page_number"`
	Offset     int    `json:"offset"`
}

// Citation returns the (source file, page) pair this chunk came from.
func (c Chunk) Citation() Citation {
	return Citation{SourceFile: c.SourceFile, PageNumber: c.PageNumber}
}

// EmbeddingRecord binds a chunk to its embedding vector.
type EmbeddingRecord struct {
	ChunkID int64     `json:"chunk_id"`
	Vector  []float32 `json:"-"`
	Chunk   Chunk     `json:"chunk"`
}

// ScoredChunk is a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is ordered by non-increasing score.
type RetrievalResult []ScoredChunk

// ChunkIDs returns the ids in ranking order.
func (r RetrievalResult) ChunkIDs() []int64 {
	ids := make([]int64, len(r))
	for i := range r {
		ids[i] = r[i].Chunk.ID
	}
	return ids
}

// Citation identifies where supporting text came from.
type Citation struct {
	SourceFile string `json:"source_file" yaml:"source_file"`
	PageNumber int    `json:"page_number" yaml:"page_number"`
}

func (c Citation) String() string {
	return fmt.Sprintf("%s, p.%d", c.SourceFile, c.PageNumber)
}
