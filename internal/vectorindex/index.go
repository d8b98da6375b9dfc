// Package vectorindex is a persistent, exact cosine-similarity index over
// chunk embeddings.
//
// On disk an index directory holds numbered generations and a CURRENT file
// naming the live one:
//
//	<dir>/CURRENT
//	<dir>/gen-00000003/manifest.json
//	<dir>/gen-00000003/vectors.bin   little-endian float32, count*dimension
//	<dir>/gen-00000003/chunks.jsonl  one chunk per line, same order
//
// Every mutation writes a complete new generation and then swaps CURRENT,
// so readers of the directory only ever see a whole index.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"docqa/internal/model"
)

// BuildOptions describes a fresh index.
type BuildOptions struct {
	// Dimension is required when records is empty; otherwise it must match.
	Dimension      int
	EmbeddingModel string
	Sources        []model.SourceFile
}

// LoadOptions states what the caller's embedder produces. Zero values skip
// the corresponding check.
type LoadOptions struct {
	Dimension      int
	EmbeddingModel string
}

type entry struct {
	record model.EmbeddingRecord
	norm   float64
}

// Index is safe for concurrent use. Queries run under a read lock and never
// observe a partially applied mutation.
type Index struct {
	mu         sync.RWMutex
	dir        string
	generation int
	manifest   Manifest
	entries    []entry
	ids        map[int64]struct{}
}

// Build creates an index from records, replacing whatever dir held.
func Build(dir string, records []model.EmbeddingRecord, opts BuildOptions) (*Index, error) {
	idx := &Index{dir: dir}
	if err := idx.Rebuild(records, opts); err != nil {
		return nil, err
	}
	return idx, nil
}

// Load opens the live generation in dir.
func Load(dir string, opts LoadOptions) (*Index, error) {
	gen, m, records, err := readLive(dir)
	if err != nil {
		return nil, err
	}
	if opts.Dimension > 0 && opts.Dimension != m.Dimension {
		return nil, &DimensionError{Index: m.Dimension, Other: opts.Dimension, Source: "caller", Path: dir}
	}
	if opts.EmbeddingModel != "" && m.EmbeddingModel != "" && opts.EmbeddingModel != m.EmbeddingModel {
		return nil, fmt.Errorf("%w: index built with %q, embedder is %q", ErrModelMismatch, m.EmbeddingModel, opts.EmbeddingModel)
	}

	entries, ids, err := prepare(records, m.Dimension, dir)
	if err != nil {
		return nil, err
	}
	return &Index{
		dir:        dir,
		generation: gen,
		manifest:   m,
		entries:    entries,
		ids:        ids,
	}, nil
}

// Rebuild replaces the whole index content with records and persists it as a
// new generation. On failure the previous content stays live.
func (idx *Index) Rebuild(records []model.EmbeddingRecord, opts BuildOptions) error {
	dim := opts.Dimension
	if len(records) > 0 {
		if dim == 0 {
			dim = len(records[0].Vector)
		}
	}
	if dim <= 0 {
		return fmt.Errorf("build index failed: dimension unknown")
	}

	entries, ids, err := prepare(records, dim, "")
	if err != nil {
		return fmt.Errorf("build index failed: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].record.ChunkID < entries[j].record.ChunkID
	})

	var next int64
	if n := len(entries); n > 0 {
		next = entries[n-1].record.ChunkID + 1
	}
	m := Manifest{
		Format:         FormatName,
		Version:        FormatVersion,
		Dimension:      dim,
		Metric:         MetricCosine,
		EmbeddingModel: opts.EmbeddingModel,
		Count:          len(entries),
		NextChunkID:    next,
		Sources:        append([]model.SourceFile(nil), opts.Sources...),
		CreatedAt:      time.Now().UTC(),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.commitLocked(m, entries, ids)
}

// Append adds records and source fingerprints without touching existing
// entries. It rejects ids already present.
func (idx *Index) Append(records []model.EmbeddingRecord, sources ...model.SourceFile) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	added, _, err := prepare(records, idx.manifest.Dimension, "")
	if err != nil {
		return fmt.Errorf("append to index failed: %w", err)
	}
	ids := make(map[int64]struct{}, len(idx.ids)+len(added))
	for id := range idx.ids {
		ids[id] = struct{}{}
	}
	next := idx.manifest.NextChunkID
	for _, e := range added {
		if _, dup := ids[e.record.ChunkID]; dup {
			return fmt.Errorf("append to index failed: %w: %d", ErrDuplicateChunk, e.record.ChunkID)
		}
		ids[e.record.ChunkID] = struct{}{}
		if e.record.ChunkID >= next {
			next = e.record.ChunkID + 1
		}
	}

	entries := make([]entry, 0, len(idx.entries)+len(added))
	entries = append(entries, idx.entries...)
	entries = append(entries, added...)

	m := idx.manifest
	m.Count = len(entries)
	m.NextChunkID = next
	m.Sources = mergeSources(m.Sources, sources)
	m.CreatedAt = time.Now().UTC()
	return idx.commitLocked(m, entries, ids)
}

// commitLocked writes a new generation, swaps CURRENT and only then replaces
// the in-memory state.
func (idx *Index) commitLocked(m Manifest, entries []entry, ids map[int64]struct{}) error {
	gen, err := nextGeneration(idx.dir)
	if err != nil {
		return err
	}
	records := make([]model.EmbeddingRecord, len(entries))
	for i := range entries {
		records[i] = entries[i].record
	}
	if err := writeGeneration(idx.dir, gen, &m, records); err != nil {
		return err
	}
	previous, err := readCurrent(idx.dir)
	if err != nil {
		previous = 0
	}
	if err := swapCurrent(idx.dir, gen); err != nil {
		return err
	}
	// readers in other processes may still be opening previous
	removeStaleGenerations(idx.dir, gen, previous)

	idx.generation = gen
	idx.manifest = m
	idx.entries = entries
	idx.ids = ids
	return nil
}

// Query returns the k records most similar to vector, best first. Ties are
// broken by lower chunk id. k larger than Count is clamped; k <= 0 yields an
// empty result.
func (idx *Index) Query(vector []float32, k int) (model.RetrievalResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(vector) != idx.manifest.Dimension {
		return nil, &DimensionError{Index: idx.manifest.Dimension, Other: len(vector), Source: "query"}
	}
	if k <= 0 || len(idx.entries) == 0 {
		return model.RetrievalResult{}, nil
	}

	qnorm := norm(vector)
	scored := make(model.RetrievalResult, len(idx.entries))
	for i, e := range idx.entries {
		scored[i] = model.ScoredChunk{
			Chunk: e.record.Chunk,
			Score: cosine(vector, qnorm, e.record.Vector, e.norm),
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k:k], nil
}

func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.manifest.Dimension
}

func (idx *Index) EmbeddingModel() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.manifest.EmbeddingModel
}

// NextChunkID is the first id not yet used by this index.
func (idx *Index) NextChunkID() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.manifest.NextChunkID
}

// Sources returns the fingerprints of the files the index was built from.
func (idx *Index) Sources() []model.SourceFile {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]model.SourceFile(nil), idx.manifest.Sources...)
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		Dir:            idx.dir,
		Generation:     idx.generation,
		Count:          len(idx.entries),
		Dimension:      idx.manifest.Dimension,
		Metric:         idx.manifest.Metric,
		EmbeddingModel: idx.manifest.EmbeddingModel,
		NextChunkID:    idx.manifest.NextChunkID,
		Sources:        append([]model.SourceFile(nil), idx.manifest.Sources...),
		CreatedAt:      idx.manifest.CreatedAt,
	}
}

// prepare copies records, checks their dimension and ids, and caches norms.
func prepare(records []model.EmbeddingRecord, dim int, path string) ([]entry, map[int64]struct{}, error) {
	entries := make([]entry, 0, len(records))
	ids := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if len(r.Vector) != dim {
			return nil, nil, &DimensionError{Index: dim, Other: len(r.Vector), Source: fmt.Sprintf("chunk %d", r.ChunkID), Path: path}
		}
		if _, dup := ids[r.ChunkID]; dup {
			return nil, nil, fmt.Errorf("%w: %d", ErrDuplicateChunk, r.ChunkID)
		}
		ids[r.ChunkID] = struct{}{}

		rec := r
		rec.Vector = append([]float32(nil), r.Vector...)
		rec.Chunk.ID = r.ChunkID
		entries = append(entries, entry{record: rec, norm: norm(rec.Vector)})
	}
	return entries, ids, nil
}

// mergeSources replaces fingerprints by name and appends new ones.
func mergeSources(existing, added []model.SourceFile) []model.SourceFile {
	out := append([]model.SourceFile(nil), existing...)
	for _, s := range added {
		replaced := false
		for i := range out {
			if out[i].Name == s.Name {
				out[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, s)
		}
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine treats a zero vector as orthogonal to everything.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
