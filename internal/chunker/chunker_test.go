package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		s := New()
		assert.Equal(t, DefaultChunkSize, s.Size())
		assert.Equal(t, DefaultChunkOverlap, s.Overlap())
	})

	t.Run("custom values", func(t *testing.T) {
		s := New(WithChunkSize(500), WithOverlap(50))
		assert.Equal(t, 500, s.Size())
		assert.Equal(t, 50, s.Overlap())
	})

	t.Run("zero overlap allowed", func(t *testing.T) {
		s := New(WithOverlap(0))
		assert.Equal(t, 0, s.Overlap())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		s := New(WithChunkSize(100), WithOverlap(150))
		assert.Less(t, s.Overlap(), s.Size())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		s := New(WithChunkSize(0), WithOverlap(-1))
		assert.Equal(t, DefaultChunkSize, s.Size())
		assert.Equal(t, DefaultChunkOverlap, s.Overlap())
	})
}

func TestSplitText_Empty(t *testing.T) {
	s := New()
	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText(" \n\t \n"))
}

func TestSplitText_Short(t *testing.T) {
	s := New(WithChunkSize(100), WithOverlap(20))
	spans := s.SplitText("a short page")
	require.Len(t, spans, 1)
	assert.Equal(t, "a short page", spans[0].Text)
	assert.Equal(t, 0, spans[0].Start)
}

func TestSplitText_HardCut(t *testing.T) {
	s := New()
	spans := s.SplitText(strings.Repeat("x", 1500))
	require.Len(t, spans, 2)
	assert.Equal(t, 1000, utf8.RuneCountInString(spans[0].Text))
	assert.Equal(t, 800, spans[1].Start)
	assert.Equal(t, 700, utf8.RuneCountInString(spans[1].Text))
}

func TestSplitText_PrefersParagraphBreak(t *testing.T) {
	s := New(WithChunkSize(40), WithOverlap(5))
	text := strings.Repeat("a", 20) + "\n\n" + strings.Repeat("b", 30)
	spans := s.SplitText(text)
	require.GreaterOrEqual(t, len(spans), 2)
	assert.Equal(t, strings.Repeat("a", 20)+"\n\n", spans[0].Text)
}

func TestSplitText_FallsBackToSpace(t *testing.T) {
	s := New(WithChunkSize(12), WithOverlap(2))
	spans := s.SplitText("alpha beta gamma delta")
	require.GreaterOrEqual(t, len(spans), 2)
	assert.Equal(t, "alpha beta ", spans[0].Text)
}

func TestSplitText_InvariantsHold(t *testing.T) {
	words := []string{"retrieval", "augmented", "generation", "über", "índice", "向量", "\n", "\n\n"}
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString(words[(i*7)%len(words)])
		if i%3 != 0 {
			b.WriteString(" ")
		}
	}
	text := b.String()

	for _, tc := range []struct{ size, overlap int }{
		{100, 20}, {57, 0}, {1000, 200}, {10, 9}, {3, 1},
	} {
		s := New(WithChunkSize(tc.size), WithOverlap(tc.overlap))
		spans := s.SplitText(text)
		require.NotEmpty(t, spans)

		var rebuilt []rune
		for i, sp := range spans {
			r := []rune(sp.Text)
			assert.LessOrEqual(t, len(r), s.Size(), "span %d too long", i)
			if i == 0 {
				rebuilt = append(rebuilt, r...)
				continue
			}
			prev := []rune(spans[i-1].Text)
			require.Greater(t, len(prev), s.Overlap())
			assert.Equal(t, string(prev[len(prev)-s.Overlap():]), string(r[:s.Overlap()]),
				"size=%d overlap=%d span=%d", tc.size, tc.overlap, i)
			rebuilt = append(rebuilt, r[s.Overlap():]...)
		}
		assert.Equal(t, text, string(rebuilt), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestChunk_PerPageAttribution(t *testing.T) {
	s := New()
	doc := model.Document{
		Source: "manual.pdf",
		Pages: []model.Page{
			{Number: 1, Text: strings.Repeat("x", 1500)},
			{Number: 2, Text: "short second page"},
			{Number: 3, Text: "   "},
		},
	}
	chunks := s.Chunk(doc)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[1].PageNumber)
	assert.Equal(t, 2, chunks[2].PageNumber)
	for _, c := range chunks {
		assert.Equal(t, "manual.pdf", c.SourceFile)
	}
}

func TestChunkAll_SequentialIDs(t *testing.T) {
	s := New()
	docs := []model.Document{
		{Source: "a.pdf", Pages: []model.Page{{Number: 1, Text: "first"}}},
		{Source: "b.pdf", Pages: []model.Page{{Number: 1, Text: "second"}, {Number: 2, Text: "third"}}},
	}
	chunks, next := s.ChunkAll(docs, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int64{10, 11, 12}, []int64{chunks[0].ID, chunks[1].ID, chunks[2].ID})
	assert.Equal(t, int64(13), next)
	assert.Equal(t, "b.pdf", chunks[2].SourceFile)
}
