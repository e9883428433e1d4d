package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/arturoeanton/medguide-qa/internal/domain"
)

type mockQA struct {
	msg    domain.StatusMessage
	answer domain.AnnotatedAnswer
	docs   []domain.DocumentSummary
	status domain.SystemStatus

	path string
	k    int
}

func (m *mockQA) InitializeSystem(context.Context) domain.StatusMessage { return m.msg }

func (m *mockQA) AddDocument(_ context.Context, path string) domain.StatusMessage {
	m.path = path
	return m.msg
}

func (m *mockQA) Rebuild(context.Context) domain.StatusMessage { return m.msg }

func (m *mockQA) AnswerQuestion(_ context.Context, _ string, k int) domain.AnnotatedAnswer {
	m.k = k
	return m.answer
}

func (m *mockQA) ListDocuments(context.Context) []domain.DocumentSummary { return m.docs }
func (m *mockQA) Status(context.Context) domain.SystemStatus { return m.status }
func (m *mockQA) ExampleQuestions() []string { return []string{"What is sepsis?"} }
func (m *mockQA) SourceLimits() (int, int) { return 3, 10 }

type mockAuditor struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *mockAuditor) WriteAudit(e domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

var builtAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
