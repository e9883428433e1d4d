package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/medguide-qa/internal/adapter/cache"
	"github.com/arturoeanton/medguide-qa/internal/adapter/store"
	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
	"github.com/arturoeanton/medguide-qa/internal/splitter"
)

const testDims = 1024

// textLoader treats every *.pdf in dir as plain text with form feeds
// between pages.
type textLoader struct{}

func (textLoader) Load(_ context.Context, dir string) ([]domain.PageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrConfiguration, err)
	}
	var pages []domain.PageRecord
	for _, e := range entries {
		if !isPDF(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for i, text := range strings.Split(string(data), "\f") {
			if strings.TrimSpace(text) == "" {
				continue
			}
			pages = append(pages, domain.PageRecord{Text: text, SourceFile: e.Name(), PageNumber: i + 1})
		}
	}
	return pages, nil
}

// gatedLoader blocks in Load until release is closed.
type gatedLoader struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{entered: make(chan struct{}), release: make(chan struct{})}
}

func (l *gatedLoader) Load(ctx context.Context, dir string) ([]domain.PageRecord, error) {
	close(l.entered)
	<-l.release
	return textLoader{}.Load(ctx, dir)
}

// bagEmbedder hashes lowercase words into a fixed number of buckets.
type bagEmbedder struct {
	calls atomic.Int64
	mu    sync.Mutex
	err   error
}

func (e *bagEmbedder) ModelName() string { return "bag-of-words" }

func (e *bagEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *bagEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDims)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(w, ".,;:?!")))
			v[h.Sum32()%testDims]++
		}
		out[i] = v
	}
	return out, nil
}

// recordingLLM echoes a fixed answer and remembers prompts.
type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
	pingErr error
}

func (l *recordingLLM) ModelName() string { return "test-llm" }

func (l *recordingLLM) Generate(_ context.Context, prompt string, _ port.GenerateOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	if l.answer == "" {
		return "Generated answer.", nil
	}
	return l.answer, nil
}

func (l *recordingLLM) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pingErr
}

func (l *recordingLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

// mapCache is an in-process AnswerCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.AnnotatedAnswer
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]domain.AnnotatedAnswer{}} }

func (c *mapCache) Get(_ context.Context, key string) (*domain.AnnotatedAnswer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (c *mapCache) Set(_ context.Context, key string, a *domain.AnnotatedAnswer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *a
	return nil
}

func (c *mapCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]domain.AnnotatedAnswer{}
	return nil
}

type fixture struct {
	svc      *RAGService
	dir      string
	embedder *bagEmbedder
	llm      *recordingLLM
	index    *store.MemoryIndex
}

func newFixture(t *testing.T, answerCache port.AnswerCache) *fixture {
	t.Helper()
	return newFixtureWithLoader(t, answerCache, textLoader{})
}

func newFixtureWithLoader(t *testing.T, answerCache port.AnswerCache, loader port.DocumentLoader) *fixture {
	t.Helper()
	if answerCache == nil {
		answerCache = cache.Noop{}
	}

	sp, err := splitter.New(splitter.Policy{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	f := &fixture{
		dir:      t.TempDir(),
		embedder: &bagEmbedder{},
		llm:      &recordingLLM{},
		index:    store.NewMemoryIndex(),
	}
	indexer := NewIndexer(loader, sp, f.embedder, 4, 3)
	f.svc = NewRAGService(indexer, f.embedder, f.llm, f.index, answerCache,
		port.GenerateOptions{Temperature: 0.3, MaxTokens: 512},
		"Context: {context}\n\nQuestion: {question}\n\nAnswer:",
		Options{
			PDFDirectory:     f.dir,
			MaxPDFBytes:      1 << 20,
			DefaultK:         3,
			MaxK:             10,
			ExampleQuestions: []string{"What is PAD?"},
		})
	return f
}

func (f *fixture) writePDF(t *testing.T, name string, pages ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(strings.Join(pages, "\f")), 0o644))
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	msg := f.svc.InitializeSystem(context.Background())
	require.True(t, msg.OK, msg.Message)
}

// words builds n distinct tokens so every chunk has its own vocabulary.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%04d", prefix, i)
	}
	return strings.Join(parts, " ")
}

var errBackendDown = fmt.Errorf("%w: connection refused", port.ErrBackendUnavailable)
