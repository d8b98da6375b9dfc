package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/ai"
	"docqa/internal/chunker"
	"docqa/internal/ingest"
	"docqa/internal/model"
)

// fakeBackend records prompts and returns a fixed reply.
type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Generate(_ context.Context, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	if b.err != nil {
		return "", b.err
	}
	return b.reply, nil
}

func (b *fakeBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return ""
	}
	return b.prompts[len(b.prompts)-1]
}

type failingEmbedder struct{ ai.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unavailable")
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider unavailable")
}

// corpus is a documents directory whose "PDFs" are plain text files with
// pages separated by form feeds.
type corpus struct {
	t    *testing.T
	root string
}

func newCorpus(t *testing.T) *corpus {
	return &corpus{t: t, root: filepath.Join(t.TempDir(), "data")}
}

func (c *corpus) write(name string, pages ...string) string {
	c.t.Helper()
	path := filepath.Join(c.root, name)
	require.NoError(c.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(c.t, os.WriteFile(path, []byte(strings.Join(pages, "\f")), 0o644))
	return path
}

func (c *corpus) remove(name string) {
	c.t.Helper()
	require.NoError(c.t, os.Remove(filepath.Join(c.root, name)))
}

func (c *corpus) loader() *ingest.Loader {
	l := ingest.NewLoader(c.root, "")
	l.Extract = func(path string) ([]string, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(string(raw), "CORRUPT") {
			return nil, errors.New("malformed xref")
		}
		return strings.Split(string(raw), "\f"), nil
	}
	return l
}

func newTestService(t *testing.T, c *corpus, backend ai.Backend) *RAGService {
	t.Helper()
	return NewRAGService(RAGConfig{
		IndexDir:       filepath.Join(t.TempDir(), "index"),
		EmbedBatchSize: 2,
		EmbedWorkers:   3,
	}, c.loader(), chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20)), ai.NewHashEmbedder(128), backend)
}

func sourcesOfResult(res model.RetrievalResult) []string {
	out := make([]string, len(res))
	for i, sc := range res {
		out[i] = sc.Chunk.SourceFile
	}
	return out
}
