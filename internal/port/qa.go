package port

import (
	"context"

	"github.com/arturoeanton/medguide-qa/internal/domain"
)

// QAService is the set of operations offered to the web UI, the MCP server
// and the CLI. None of them return raw errors.
type QAService interface {
	InitializeSystem(ctx context.Context) domain.StatusMessage
	AddDocument(ctx context.Context, path string) domain.StatusMessage
	Rebuild(ctx context.Context) domain.StatusMessage
	AnswerQuestion(ctx context.Context, question string, k int) domain.AnnotatedAnswer
	ListDocuments(ctx context.Context) []domain.DocumentSummary
	Status(ctx context.Context) domain.SystemStatus
	ExampleQuestions() []string
	SourceLimits() (defaultK, maxK int)
}
