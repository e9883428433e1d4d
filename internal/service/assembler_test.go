package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

func scored(id, file string, page int, text string, sim float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk:      domain.Chunk{ID: id, Text: text, SourceFile: file, PageNumber: page},
		Similarity: sim,
	}
}

func TestAssembler_BuildPrompt(t *testing.T) {
	a := NewAssembler(&recordingLLM{}, "C: {context}\nQ: {question}", port.GenerateOptions{})

	prompt := a.BuildPrompt("Is {context} literal?", domain.QueryResult{
		scored("1", "a.pdf", 1, "first", 0.9),
		scored("2", "b.pdf", 2, "second {question}", 0.8),
	})

	assert.Equal(t, "C: first\n\nsecond {question}\nQ: Is {context} literal?", prompt)
}

func TestAssembler_Answer(t *testing.T) {
	llm := &recordingLLM{answer: "Use the ankle-brachial index."}
	a := NewAssembler(llm, "{context}|{question}", port.GenerateOptions{Temperature: 0.3, MaxTokens: 512})

	long := strings.Repeat("x", 140) + "\nline two continues here"
	answer := a.Answer(context.Background(), "How to diagnose PAD?", domain.QueryResult{
		scored("1", "esvs.pdf", 12, "ABI below 0.9\nis diagnostic", 0.91),
		scored("2", "iwgdf.pdf", 3, long, 0.75),
	})

	require.False(t, answer.IsError)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, 1, answer.Citations[0].Rank)
	assert.Equal(t, "esvs.pdf", answer.Citations[0].SourceFile)
	assert.Equal(t, 12, answer.Citations[0].PageNumber)
	assert.Equal(t, "ABI below 0.9 is diagnostic", answer.Citations[0].Preview)
	assert.Len(t, []rune(answer.Citations[1].Preview), 150)
	assert.NotContains(t, answer.Citations[1].Preview, "\n")

	want := "Use the ankle-brachial index." +
		"\n\n---\n**Sources:**\n" +
		"\n1. **esvs.pdf** (Page 12)\n   Preview: ABI below 0.9 is diagnostic...\n" +
		"\n2. **iwgdf.pdf** (Page 3)\n   Preview: " + answer.Citations[1].Preview + "...\n"
	assert.Equal(t, want, answer.Formatted)
	assert.Equal(t, "Use the ankle-brachial index.", answer.Answer)

	require.Equal(t, 1, llm.calls())
	assert.Equal(t, "ABI below 0.9\nis diagnostic\n\n"+long+"|How to diagnose PAD?", llm.prompts[0])
}

func TestAssembler_NoRetrievedChunks(t *testing.T) {
	a := NewAssembler(&recordingLLM{answer: "I don't know."}, "{context}{question}", port.GenerateOptions{})

	answer := a.Answer(context.Background(), "q", domain.QueryResult{})
	assert.False(t, answer.IsError)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, "I don't know.", answer.Formatted)
}

func TestAssembler_LLMError(t *testing.T) {
	a := NewAssembler(&recordingLLM{err: errBackendDown}, "{context}{question}", port.GenerateOptions{})

	answer := a.Answer(context.Background(), "q", domain.QueryResult{scored("1", "a.pdf", 1, "t", 1)})
	assert.True(t, answer.IsError)
	assert.Equal(t, "Error: "+errBackendDown.Error(), answer.Answer)
	assert.Equal(t, port.KindBackendUnavailable, answer.ErrorKind)
	assert.Empty(t, answer.Citations)
}

func TestFormatSources_Empty(t *testing.T) {
	assert.Equal(t, "", FormatSources(nil))
}
