// Package chunker splits page text into overlapping, size-bounded chunks.
package chunker

import (
	"strings"

	"docqa/internal/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried in order; the first one that yields a usable cut wins.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// Splitter cuts text into chunks of at most size runes where consecutive
// chunks share exactly overlap runes.
type Splitter struct {
	size    int
	overlap int
}

type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithOverlap sets how many runes consecutive chunks share.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Span is a piece of split text and its rune offset in the input.
type Span struct {
	Start int
	Text  string
}

// SplitText splits text. Whitespace-only input yields no spans.
// Concatenating the spans with each one's first overlap runes removed
// (except the first) reproduces text exactly.
func (s *Splitter) SplitText(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)

	var spans []Span
	start := 0
	for {
		if len(runes)-start <= s.size {
			return append(spans, Span{Start: start, Text: string(runes[start:])})
		}
		cut := s.cutPoint(runes, start)
		spans = append(spans, Span{Start: start, Text: string(runes[start:cut])})
		start = cut - s.overlap
	}
}

// cutPoint returns the end of the chunk starting at start. A separator stays
// with the chunk it ends. The cut must land past start+overlap so the next
// chunk always advances.
func (s *Splitter) cutPoint(runes []rune, start int) int {
	limit := start + s.size
	floor := start + s.overlap
	for _, sep := range separators {
		for end := limit; end > floor && end-len(sep) >= start; end-- {
			if hasSuffixAt(runes, end, sep) {
				return end
			}
		}
	}
	return limit
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	off := end - len(sep)
	for i, r := range sep {
		if runes[off+i] != r {
			return false
		}
	}
	return true
}

// Chunk splits every page of doc. Chunks never span pages. IDs are left zero;
// they are assigned when the chunks enter an index build.
func (s *Splitter) Chunk(doc model.Document) []model.Chunk {
	var chunks []model.Chunk
	for _, page := range doc.Pages {
		for _, span := range s.SplitText(page.Text) {
			chunks = append(chunks, model.Chunk{
				Text:       span.Text,
				SourceFile: doc.Source,
				PageNumber: page.Number,
				Offset:     span.Start,
			})
		}
	}
	return chunks
}

// ChunkAll splits docs in order and numbers the chunks from firstID.
// It returns the chunks and the next unused id.
func (s *Splitter) ChunkAll(docs []model.Document, firstID int64) ([]model.Chunk, int64) {
	var all []model.Chunk
	next := firstID
	for _, doc := range docs {
		for _, c := range s.Chunk(doc) {
			c.ID = next
			next++
			all = append(all, c)
		}
	}
	return all, next
}
