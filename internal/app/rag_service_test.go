package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/ai"
	"docqa/internal/chunker"
	"docqa/internal/model"
	"docqa/internal/vectorindex"
)

func TestSync_EmptyCorpusWithoutIndex(t *testing.T) {
	c := newCorpus(t)
	s := newTestService(t, c, &fakeBackend{})

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Nil(t, s.Index())
}

func TestSync_BuildsThenUnchanged(t *testing.T) {
	c := newCorpus(t)
	c.write("guide.pdf", "installation requires a running redis server", "the vector index lives on disk")
	c.write("faq.pdf", "questions are answered with citations")
	s := newTestService(t, c, &fakeBackend{})

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeBuild, report.Mode)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.Total)

	// Files are indexed in sorted order: faq.pdf chunks come first.
	res, err := s.Retrieve(context.Background(), "answered with citations", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(0), res[0].Chunk.ID)
	assert.Equal(t, "faq.pdf", res[0].Chunk.SourceFile)

	report, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeUnchanged, report.Mode)
	assert.Equal(t, 3, report.Total)
}

func TestSync_AppendsNewFiles(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha document text")
	s := newTestService(t, c, &fakeBackend{})
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	c.write("b.pdf", "bravo document text", "second bravo page")
	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, report.Mode)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 3, report.Total)

	res, err := s.Retrieve(context.Background(), "second bravo page", 1)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", res[0].Chunk.SourceFile)
	assert.Equal(t, 2, res[0].Chunk.PageNumber)
	assert.Equal(t, int64(2), res[0].Chunk.ID)
}

func TestSync_RebuildsOnChangeOrRemoval(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha document text")
	c.write("b.pdf", "bravo document text")
	s := newTestService(t, c, &fakeBackend{})
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	c.write("a.pdf", "alpha rewritten entirely", "with another page")
	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeRebuild, report.Mode)
	assert.Equal(t, 3, report.Total)

	c.remove("b.pdf")
	report, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeRebuild, report.Mode)
	assert.Equal(t, 2, report.Total)

	res, err := s.Retrieve(context.Background(), "bravo", 10)
	require.NoError(t, err)
	assert.NotContains(t, sourcesOfResult(res), "b.pdf")
}

func TestSync_LoadsPersistedIndex(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha document text")
	first := newTestService(t, c, &fakeBackend{})
	_, err := first.Sync(context.Background())
	require.NoError(t, err)

	second := NewRAGService(first.cfg, c.loader(), chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(20)), ai.NewHashEmbedder(128), &fakeBackend{})
	report, err := second.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeUnchanged, report.Mode)
	assert.Equal(t, 1, report.Total)
}

func TestSync_RefusesDimensionMismatch(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha document text")
	first := newTestService(t, c, &fakeBackend{})
	_, err := first.Sync(context.Background())
	require.NoError(t, err)

	other := NewRAGService(first.cfg, c.loader(), chunker.New(), ai.NewHashEmbedder(64), &fakeBackend{})
	_, err = other.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	// An explicit rebuild migrates the index to the new embedder.
	report, err := other.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 64, other.Index().Dimension())
}

func TestSync_SkipsCorruptFiles(t *testing.T) {
	c := newCorpus(t)
	c.write("good.pdf", "readable text")
	c.write("bad.pdf", "CORRUPT")
	s := newTestService(t, c, &fakeBackend{})

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "bad.pdf")

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Len(t, stats.Sources, 1)
	assert.Equal(t, "good.pdf", stats.Sources[0].Name)
}

func TestSync_EmptyPagesProduceNoChunks(t *testing.T) {
	c := newCorpus(t)
	c.write("scan.pdf", "   ", "")
	s := newTestService(t, c, &fakeBackend{})

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)

	res, err := s.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestAsk_EndToEnd(t *testing.T) {
	c := newCorpus(t)
	c.write("manual.pdf", "the chunk overlap defaults to two hundred characters", "unrelated appendix about fonts")
	backend := &fakeBackend{reply: "Two hundred characters."}
	s := newTestService(t, c, backend)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	res, err := s.Ask(context.Background(), AskInput{Question: "what is the chunk overlap default?", TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, "Two hundred characters.", res.Answer)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "manual.pdf, p.1", res.Citations[0].String())
	assert.Contains(t, backend.lastPrompt(), "two hundred characters")
}

func TestAsk_Errors(t *testing.T) {
	c := newCorpus(t)
	s := newTestService(t, c, &fakeBackend{})

	_, err := s.Ask(context.Background(), AskInput{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = s.Ask(context.Background(), AskInput{Question: "q"})
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestEmbed_FailureAbortsBuild(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha")
	s := NewRAGService(RAGConfig{IndexDir: filepath.Join(t.TempDir(), "idx")}, c.loader(), chunker.New(),
		failingEmbedder{ai.NewHashEmbedder(8)}, &fakeBackend{})

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Nil(t, s.Index())
}

func TestEmbed_PreservesOrderAcrossWorkers(t *testing.T) {
	c := newCorpus(t)
	pages := make([]string, 25)
	for i := range pages {
		pages[i] = strings.Repeat("word ", i+1)
	}
	c.write("long.pdf", pages...)
	s := newTestService(t, c, &fakeBackend{})
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	chunks, _ := s.splitter.ChunkAll(s.loader.LoadAll([]string{filepath.Join(c.root, "long.pdf")}).Documents, 0)
	records, err := s.embed(context.Background(), chunks)
	require.NoError(t, err)
	for i, r := range records {
		assert.Equal(t, int64(i), r.ChunkID)
		assert.Equal(t, i+1, r.Chunk.PageNumber)
	}
}

func TestAddDocument(t *testing.T) {
	c := newCorpus(t)
	c.write("a.pdf", "alpha")
	s := newTestService(t, c, &fakeBackend{})
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	report, err := s.AddDocument(context.Background(), "../../new.pdf", strings.NewReader("%PDF-1.4 uploaded body"))
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, report.Mode)
	_, err = os.Stat(filepath.Join(c.root, "new.pdf"))
	require.NoError(t, err)

	_, err = s.AddDocument(context.Background(), "notes.txt", strings.NewReader("%PDF-1.4"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.AddDocument(context.Background(), "fake.pdf", strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetrieve_SameQueryIsStable(t *testing.T) {
	c := newCorpus(t)
	c.write("manual.pdf", "prime the pump before start", "drain the tank weekly", "check the pump seals monthly")
	c.write("guide.pdf", "pump pressure should stay below four bar")
	s := newTestService(t, c, &fakeBackend{})
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	first, err := s.Retrieve(context.Background(), "how often to check the pump", 3)
	require.NoError(t, err)
	second, err := s.Retrieve(context.Background(), "how often to check the pump", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

// fixedWords builds n ten-rune words "<prefix><4 digits> " numbered from
// first, so every tenth rune is a space.
func fixedWords(prefix string, first, n int) string {
	var b strings.Builder
	for i := first; i < first+n; i++ {
		fmt.Fprintf(&b, "%s%04d ", prefix, i)
	}
	return b.String()
}

func TestAsk_OverlappingChunksOnLongPage(t *testing.T) {
	// Page 1 has 1500 runes: 80 intro words, 20 words shared by both
	// chunks, then 50 words only the second chunk holds.
	page1 := fixedWords("intro", 0, 80) + fixedWords("share", 80, 20) + fixedWords("pumps", 100, 50)
	require.Len(t, []rune(page1), 1500)

	c := newCorpus(t)
	c.write("manual.pdf", page1, "drain the tank weekly", "replace worn seals")
	backend := &fakeBackend{reply: "See page one."}
	s := NewRAGService(RAGConfig{IndexDir: filepath.Join(t.TempDir(), "index")},
		c.loader(), chunker.New(chunker.WithChunkSize(1000), chunker.WithOverlap(200)), ai.NewHashEmbedder(512), backend)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	all, err := s.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	byID := make(map[int64]model.Chunk, len(all))
	for _, sc := range all {
		byID[sc.Chunk.ID] = sc.Chunk
	}
	assert.Equal(t, 1, byID[0].PageNumber)
	assert.Equal(t, 0, byID[0].Offset)
	assert.Equal(t, []rune(page1)[:1000], []rune(byID[0].Text))
	assert.Equal(t, 1, byID[1].PageNumber)
	assert.Equal(t, 800, byID[1].Offset)
	assert.Equal(t, []rune(page1)[800:], []rune(byID[1].Text))
	assert.Equal(t, 2, byID[2].PageNumber)
	assert.Equal(t, 3, byID[3].PageNumber)

	query := fixedWords("pumps", 110, 10)
	res, err := s.Ask(context.Background(), AskInput{Question: query, TopK: 1})
	require.NoError(t, err)
	require.Len(t, res.Context, 1)
	assert.Equal(t, int64(1), res.Context[0].Chunk.ID)
	assert.Equal(t, []model.Citation{{SourceFile: "manual.pdf", PageNumber: 1}}, res.Citations)
}
