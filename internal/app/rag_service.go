package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"docqa/internal/ai"
	"docqa/internal/chunker"
	"docqa/internal/ingest"
	"docqa/internal/model"
	"docqa/internal/vectorindex"
)

const (
	defaultEmbedBatchSize = 32
	defaultEmbedWorkers   = 4
)

const (
	ModeBuild     = "build"
	ModeRebuild   = "rebuild"
	ModeAppend    = "append"
	ModeUnchanged = "unchanged"
)

type RAGConfig struct {
	IndexDir          string
	TopK              int
	ContextBudget     int
	EmbedBatchSize    int
	EmbedWorkers      int
	RequestsPerSecond float64
}

// RAGService owns the live index and answers questions against it.
// Index mutations are serialized; queries run concurrently with them.
type RAGService struct {
	cfg       RAGConfig
	loader    *ingest.Loader
	splitter  *chunker.Splitter
	embedder  ai.Embedder
	limiter   *rate.Limiter
	retriever *Retriever
	composer  *Composer

	buildMu sync.Mutex
	index   atomic.Pointer[vectorindex.Index]
}

func NewRAGService(
	cfg RAGConfig,
	loader *ingest.Loader,
	splitter *chunker.Splitter,
	embedder ai.Embedder,
	backend ai.Backend,
) *RAGService {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = defaultEmbedWorkers
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	s := &RAGService{
		cfg:      cfg,
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, cfg.EmbedWorkers),
		composer: NewComposer(backend, cfg.ContextBudget),
	}
	s.retriever = NewRetriever(embedder, liveIndex{s}, cfg.TopK)
	return s
}

// liveIndex resolves the current index on every query.
type liveIndex struct{ s *RAGService }

func (l liveIndex) Query(vector []float32, k int) (model.RetrievalResult, error) {
	idx := l.s.index.Load()
	if idx == nil {
		return nil, ErrIndexNotReady
	}
	return idx.Query(vector, k)
}

// Index returns the live index, or nil before the first Sync or Rebuild.
func (s *RAGService) Index() *vectorindex.Index {
	return s.index.Load()
}

func (s *RAGService) Stats() (vectorindex.Stats, error) {
	idx := s.index.Load()
	if idx == nil {
		return vectorindex.Stats{}, ErrIndexNotReady
	}
	return idx.Stats(), nil
}

type AskInput struct {
	Question string
	TopK     int
}

type AskResult struct {
	Answer    string                `json:"answer" yaml:"answer"`
	Citations []model.Citation      `json:"citations" yaml:"citations"`
	Context   model.RetrievalResult `json:"context" yaml:"-"`
}

// Ask retrieves the nearest chunks and composes a cited answer.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	retrieved, err := s.retriever.Retrieve(ctx, question, input.TopK)
	if err != nil {
		return nil, err
	}
	answer, err := s.composer.Compose(ctx, question, retrieved)
	if err != nil {
		return nil, err
	}
	return &AskResult{
		Answer:    answer.Text,
		Citations: answer.Citations,
		Context:   answer.Context,
	}, nil
}

// Retrieve exposes retrieval without generation.
func (s *RAGService) Retrieve(ctx context.Context, query string, k int) (model.RetrievalResult, error) {
	return s.retriever.Retrieve(ctx, query, k)
}

// BuildReport summarizes one index maintenance run.
type BuildReport struct {
	Mode     string        `json:"mode" yaml:"mode"`
	Files    int           `json:"files" yaml:"files"`
	Chunks   int           `json:"chunks" yaml:"chunks"`
	Total    int           `json:"total" yaml:"total"`
	Failures []string      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Sync brings the index in line with the documents directory:
//   - no index on disk: build one, or fail with ErrNoDocuments
//   - an indexed file changed or disappeared: rebuild everything
//   - only new files: append them
//   - otherwise: keep the loaded index
func (s *RAGService) Sync(ctx context.Context) (*BuildReport, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	paths, err := s.loader.Discover()
	if err != nil {
		return nil, err
	}
	current := s.fingerprints(paths)

	idx := s.index.Load()
	if idx == nil {
		loaded, err := vectorindex.Load(s.cfg.IndexDir, vectorindex.LoadOptions{
			Dimension:      s.embedder.Dimension(),
			EmbeddingModel: s.embedder.ModelName(),
		})
		switch {
		case err == nil:
			log.Printf("rag: loaded index %s with %d chunks", s.cfg.IndexDir, loaded.Count())
			s.index.Store(loaded)
			idx = loaded
		case errors.Is(err, vectorindex.ErrIndexNotFound):
			if len(paths) == 0 {
				return nil, fmt.Errorf("%w in %s", ErrNoDocuments, s.loader.Root)
			}
			return s.buildLocked(ctx, paths, current, ModeBuild)
		default:
			return nil, fmt.Errorf("load index failed: %w", err)
		}
	}

	changed, added := diffSources(idx.Sources(), paths, current)
	switch {
	case changed:
		return s.buildLocked(ctx, paths, current, ModeRebuild)
	case len(added) > 0:
		return s.appendLocked(ctx, idx, added, current)
	default:
		return &BuildReport{Mode: ModeUnchanged, Total: idx.Count()}, nil
	}
}

// Rebuild re-indexes the whole corpus and atomically replaces the index.
func (s *RAGService) Rebuild(ctx context.Context) (*BuildReport, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	paths, err := s.loader.Discover()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 && s.index.Load() == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, s.loader.Root)
	}
	mode := ModeRebuild
	if s.index.Load() == nil {
		mode = ModeBuild
	}
	return s.buildLocked(ctx, paths, s.fingerprints(paths), mode)
}

// AddDocument stores a PDF in the documents directory and syncs the index.
func (s *RAGService) AddDocument(ctx context.Context, name string, r io.Reader) (*BuildReport, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, fmt.Errorf("%w: %q is not a pdf file name", ErrInvalidInput, name)
	}
	if err := saveDocument(filepath.Join(s.loader.Root, name), r); err != nil {
		return nil, err
	}
	return s.Sync(ctx)
}

func saveDocument(dst string, r io.Reader) error {
	br := bufio.NewReader(r)
	magic, err := br.Peek(5)
	if err != nil || string(magic) != "%PDF-" {
		return fmt.Errorf("%w: content is not a pdf", ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create documents dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create upload file failed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, br); err != nil {
		tmp.Close()
		return fmt.Errorf("write upload failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close upload failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("store upload failed: %w", err)
	}
	return nil
}

func (s *RAGService) buildLocked(ctx context.Context, paths []string, current map[string]model.SourceFile, mode string) (*BuildReport, error) {
	start := time.Now()
	loaded := s.loader.LoadAll(paths)
	chunks, _ := s.splitter.ChunkAll(loaded.Documents, 0)
	records, err := s.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	opts := vectorindex.BuildOptions{
		Dimension:      s.embedder.Dimension(),
		EmbeddingModel: s.embedder.ModelName(),
		Sources:        sourcesOf(loaded.Documents, current),
	}
	idx := s.index.Load()
	if idx == nil {
		idx, err = vectorindex.Build(s.cfg.IndexDir, records, opts)
		if err != nil {
			return nil, err
		}
		s.index.Store(idx)
	} else if err := idx.Rebuild(records, opts); err != nil {
		return nil, err
	}

	report := newReport(mode, loaded, len(records), idx.Count(), start)
	log.Printf("rag: %s indexed %d files into %d chunks in %s", mode, report.Files, report.Chunks, report.Elapsed)
	return report, nil
}

func (s *RAGService) appendLocked(ctx context.Context, idx *vectorindex.Index, paths []string, current map[string]model.SourceFile) (*BuildReport, error) {
	start := time.Now()
	loaded := s.loader.LoadAll(paths)
	chunks, _ := s.splitter.ChunkAll(loaded.Documents, idx.NextChunkID())
	records, err := s.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(loaded.Documents) > 0 {
		if err := idx.Append(records, sourcesOf(loaded.Documents, current)...); err != nil {
			return nil, err
		}
	}

	report := newReport(ModeAppend, loaded, len(records), idx.Count(), start)
	log.Printf("rag: appended %d files as %d chunks", report.Files, report.Chunks)
	return report, nil
}

// embed fans batches out to the embedder and places results by position, so
// the record order never depends on scheduling.
func (s *RAGService) embed(ctx context.Context, chunks []model.Chunk) ([]model.EmbeddingRecord, error) {
	records := make([]model.EmbeddingRecord, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedWorkers)

	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]
		offset := start
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: chunks %d-%d: %w", ErrEmbeddingFailed, batch[0].ID, batch[len(batch)-1].ID, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vecs), len(batch))
			}
			for i, c := range batch {
				records[offset+i] = model.EmbeddingRecord{ChunkID: c.ID, Vector: vecs[i], Chunk: c}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// fingerprints hashes each path; unreadable files are left out and get
// reported again when loading.
func (s *RAGService) fingerprints(paths []string) map[string]model.SourceFile {
	out := make(map[string]model.SourceFile, len(paths))
	for _, p := range paths {
		fp, err := s.loader.Fingerprint(p)
		if err != nil {
			log.Printf("rag: fingerprint %s failed: %v", p, err)
			continue
		}
		out[p] = fp
	}
	return out
}

// diffSources compares the indexed fingerprints with the corpus on disk.
// changed is true when an indexed file was modified or removed; added lists
// corpus files the index has never seen.
func diffSources(indexed []model.SourceFile, paths []string, current map[string]model.SourceFile) (changed bool, added []string) {
	byName := make(map[string]model.SourceFile, len(current))
	for _, fp := range current {
		byName[fp.Name] = fp
	}
	known := make(map[string]struct{}, len(indexed))
	for _, src := range indexed {
		known[src.Name] = struct{}{}
		fp, ok := byName[src.Name]
		if !ok || fp.SHA256 != src.SHA256 {
			changed = true
		}
	}
	for _, p := range paths {
		fp, ok := current[p]
		if !ok {
			continue
		}
		if _, seen := known[fp.Name]; !seen {
			added = append(added, p)
		}
	}
	return changed, added
}

func sourcesOf(docs []model.Document, current map[string]model.SourceFile) []model.SourceFile {
	out := make([]model.SourceFile, 0, len(docs))
	for _, d := range docs {
		if fp, ok := current[d.Path]; ok {
			out = append(out, fp)
		}
	}
	return out
}

func newReport(mode string, loaded ingest.Result, chunks, total int, start time.Time) *BuildReport {
	report := &BuildReport{
		Mode:    mode,
		Files:   len(loaded.Documents),
		Chunks:  chunks,
		Total:   total,
		Elapsed: time.Since(start).Round(time.Millisecond),
	}
	for _, f := range loaded.Failures {
		report.Failures = append(report.Failures, f.Error())
	}
	return report
}
