package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/ai"
	"docqa/internal/model"
)

// DefaultContextBudget caps the chunk text placed in a prompt, in runes.
const DefaultContextBudget = 6000

const promptHeader = `You answer questions about a private collection of PDF documents.
Use only the numbered context passages below. Mention the source file and page
of the passages you rely on. If the context does not contain the answer, say
that you do not know.

Context:
`

// Answer is the composed response. Context holds the chunks actually placed
// in the prompt; Citations are derived from them only.
type Answer struct {
	Text      string                `json:"answer" yaml:"answer"`
	Citations []model.Citation      `json:"citations" yaml:"citations"`
	Context   model.RetrievalResult `json:"context,omitempty" yaml:"-"`
}

type Composer struct {
	backend ai.Backend
	budget  int
}

func NewComposer(backend ai.Backend, budget int) *Composer {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	return &Composer{backend: backend, budget: budget}
}

// Fit keeps the highest-ranked chunks whose combined text fits the budget.
func (c *Composer) Fit(retrieved model.RetrievalResult) model.RetrievalResult {
	total := 0
	n := 0
	for _, sc := range retrieved {
		size := utf8.RuneCountInString(sc.Chunk.Text)
		if total+size > c.budget {
			break
		}
		total += size
		n++
	}
	return retrieved[:n:n]
}

// BuildPrompt renders question and context into the fixed template.
func BuildPrompt(question string, passages model.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	if len(passages) == 0 {
		b.WriteString("(no passages)\n")
	}
	for i, sc := range passages {
		fmt.Fprintf(&b, "[%d] %s, page %d\n%s\n\n", i+1, sc.Chunk.SourceFile, sc.Chunk.PageNumber, strings.TrimSpace(sc.Chunk.Text))
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", strings.TrimSpace(question))
	return b.String()
}

// Citations lists the distinct (file, page) pairs of passages in first-seen order.
func Citations(passages model.RetrievalResult) []model.Citation {
	seen := make(map[model.Citation]struct{}, len(passages))
	out := make([]model.Citation, 0, len(passages))
	for _, sc := range passages {
		c := sc.Chunk.Citation()
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Compose asks the backend and attaches citations for the chunks it saw.
func (c *Composer) Compose(ctx context.Context, question string, retrieved model.RetrievalResult) (*Answer, error) {
	if c.backend == nil {
		return nil, ai.ErrBackendUnconfigured
	}
	kept := c.Fit(retrieved)
	text, err := c.backend.Generate(ctx, BuildPrompt(question, kept))
	if err != nil {
		return nil, err
	}
	return &Answer{
		Text:      strings.TrimSpace(text),
		Citations: Citations(kept),
		Context:   kept,
	}, nil
}
