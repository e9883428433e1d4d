package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

const (
	contextSeparator = "\n\n"
	previewLength    = 150
)

// Assembler fills the prompt template with retrieved context, calls the
// LLM and appends the source list.
type Assembler struct {
	llm      port.LLM
	template string
	opts     port.GenerateOptions
}

// NewAssembler creates an assembler. template must contain the {context}
// and {question} slots.
func NewAssembler(llm port.LLM, template string, opts port.GenerateOptions) *Assembler {
	return &Assembler{llm: llm, template: template, opts: opts}
}

// BuildPrompt substitutes both slots in a single pass, so slot markers
// inside the question or the context are left alone.
func (a *Assembler) BuildPrompt(question string, retrieved domain.QueryResult) string {
	texts := make([]string, len(retrieved))
	for i, sc := range retrieved {
		texts[i] = sc.Text
	}
	return strings.NewReplacer(
		"{context}", strings.Join(texts, contextSeparator),
		"{question}", question,
	).Replace(a.template)
}

// Answer never fails: LLM errors come back as an error-flagged answer.
func (a *Assembler) Answer(ctx context.Context, question string, retrieved domain.QueryResult) domain.AnnotatedAnswer {
	text, err := a.llm.Generate(ctx, a.BuildPrompt(question, retrieved), a.opts)
	if err != nil {
		slog.Error("generation failed", "model", a.llm.ModelName(), "error", err)
		return errorAnswer(question, err)
	}

	citations := Citations(retrieved)
	return domain.AnnotatedAnswer{
		Question:  question,
		Answer:    text,
		Citations: citations,
		Formatted: text + FormatSources(citations),
	}
}

// Citations lists the retrieved chunks in rank order.
func Citations(retrieved domain.QueryResult) []domain.Citation {
	citations := make([]domain.Citation, len(retrieved))
	for i, sc := range retrieved {
		citations[i] = domain.Citation{
			Rank:       i + 1,
			SourceFile: sc.SourceFile,
			PageNumber: sc.PageNumber,
			Preview:    preview(sc.Text),
			Similarity: sc.Similarity,
		}
	}
	return citations
}

// FormatSources renders the markdown source list appended to an answer.
// It is empty when there are no citations.
func FormatSources(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n---\n**Sources:**\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "\n%d. **%s** (Page %d)\n   Preview: %s...\n", c.Rank, c.SourceFile, c.PageNumber, c.Preview)
	}
	return b.String()
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > previewLength {
		r = r[:previewLength]
	}
	return strings.ReplaceAll(string(r), "\n", " ")
}

func errorAnswer(question string, err error) domain.AnnotatedAnswer {
	msg := "Error: " + err.Error()
	return domain.AnnotatedAnswer{
		Question:  question,
		Answer:    msg,
		Formatted: msg,
		IsError:   true,
		ErrorKind: port.Kind(err),
	}
}
