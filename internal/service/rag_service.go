package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Messages shown to users. They are part of the outward contract.
const (
	MsgNotInitialized     = "Please initialize the system first by clicking 'Initialize System'"
	MsgEmptyQuestion      = "Please enter a question"
	MsgNoFile             = "Please upload a PDF file"
	MsgInitialized        = "✓ System initialized successfully! You can now ask questions."
	MsgAlreadyInitialized = "✓ System already initialized! Ready to answer questions."
)

// Options configures a QAService.
type Options struct {
	PDFDirectory     string
	MaxPDFBytes      int64
	DefaultK         int
	MaxK             int
	ExampleQuestions []string
}

// Ensure RAGService implements the interface.
var _ port.QAService = (*RAGService)(nil)

// RAGService owns the system state: whether an index is ready, and which
// generation it is. Mutations hold mu for their whole run, so builds are
// serialized; questions share the read lock. state and info are also guarded
// by stateMu, which is only held for a copy, so Status never waits on a build.
type RAGService struct {
	indexer   *Indexer
	retriever *Retriever
	assembler *Assembler
	index     port.VectorIndex
	cache     port.AnswerCache
	embedder  port.Embedder
	llm       port.LLM
	opts      Options

	mu sync.RWMutex

	stateMu sync.Mutex
	state   domain.SystemState
	info    domain.IndexInfo
}

// NewRAGService wires the pipeline around index. cache may be a no-op.
func NewRAGService(
	indexer *Indexer,
	embedder port.Embedder,
	llm port.LLM,
	index port.VectorIndex,
	cache port.AnswerCache,
	genOpts port.GenerateOptions,
	promptTemplate string,
	opts Options,
) *RAGService {
	if opts.MaxK < 1 {
		opts.MaxK = 1
	}
	opts.DefaultK = max(1, min(opts.DefaultK, opts.MaxK))

	return &RAGService{
		indexer:   indexer,
		retriever: NewRetriever(embedder, index, opts.MaxK),
		assembler: NewAssembler(llm, promptTemplate, genOpts),
		index:     index,
		cache:     cache,
		embedder:  embedder,
		llm:       llm,
		opts:      opts,
		state:     domain.StateUninitialized,
	}
}

// InitializeSystem checks the backends, then loads the persisted index or
// builds one from the PDF directory.
func (s *RAGService) InitializeSystem(ctx context.Context) domain.StatusMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateReady {
		return ok(MsgAlreadyInitialized)
	}

	if err := s.ping(ctx); err != nil {
		return failure(err, "✗ Backend not available: %v", err)
	}

	info, err := s.index.Load(ctx)
	switch {
	case err == nil:
		slog.Info("loaded existing index",
			"backend", info.Backend,
			"generation", info.Generation,
			"chunks", info.Count,
		)
	case errors.Is(err, port.ErrIndexNotFound):
		slog.Info("no index found, building", "dir", s.opts.PDFDirectory)
		if info, err = s.rebuildLocked(ctx); err != nil {
			return failure(err, "✗ Error initializing system: %v", err)
		}
	default:
		return failure(err, "✗ Error initializing system: %v", err)
	}

	s.setReady(info)
	return ok(MsgInitialized)
}

// AddDocument copies the PDF at path into the managed directory and rebuilds
// the index. A duplicate filename is rejected before anything is touched;
// a failed rebuild removes the copy and keeps the previous index.
func (s *RAGService) AddDocument(ctx context.Context, path string) domain.StatusMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateReady {
		return failure(port.ErrNotInitialized, MsgNotInitialized)
	}
	if strings.TrimSpace(path) == "" {
		return failure(port.ErrInvalidDocument, MsgNoFile)
	}

	name := filepath.Base(path)
	if err := s.validateUpload(path, name); err != nil {
		return failure(err, "✗ Error adding PDF: %v", err)
	}

	dest := filepath.Join(s.opts.PDFDirectory, name)
	if _, err := os.Stat(dest); err == nil {
		return failure(port.ErrDuplicateDocument,
			"⚠️ %s already exists in database. Rebuild the index to pick up changes.", name)
	}

	if err := copyFile(path, dest); err != nil {
		return failure(err, "✗ Error adding PDF: %v", err)
	}

	info, err := s.rebuildLocked(ctx)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			slog.Warn("failed to remove copied document", "path", dest, "error", rmErr)
		}
		return failure(err, "✗ Error adding PDF: %v", err)
	}
	s.setReady(info)

	slog.Info("document added", "file", name, "chunks", info.Count)
	return ok(fmt.Sprintf("✓ Successfully added %s to the database!\nTotal chunks: %d", name, info.Count))
}

// Rebuild re-embeds the whole corpus even when an index already exists.
func (s *RAGService) Rebuild(ctx context.Context) domain.StatusMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ping(ctx); err != nil {
		return failure(err, "✗ Backend not available: %v", err)
	}

	info, err := s.rebuildLocked(ctx)
	if err != nil {
		return failure(err, "✗ Error rebuilding index: %v", err)
	}
	s.setReady(info)
	return ok(fmt.Sprintf("✓ Index rebuilt: %d chunks (generation %s)", info.Count, info.Generation))
}

// rebuildLocked must be called with the write lock held.
func (s *RAGService) rebuildLocked(ctx context.Context) (domain.IndexInfo, error) {
	entries, err := s.indexer.Prepare(ctx, s.opts.PDFDirectory)
	if err != nil {
		return domain.IndexInfo{}, err
	}

	generation := ulid.Make().String()
	ReportProgress(ctx, Progress{Stage: StagePersisting, Total: len(entries)})
	if err := s.index.Build(ctx, entries, generation); err != nil {
		return domain.IndexInfo{}, fmt.Errorf("build index: %w", err)
	}
	ReportProgress(ctx, Progress{Stage: StagePersisting, Done: len(entries), Total: len(entries)})

	if err := s.cache.Clear(ctx); err != nil {
		slog.Warn("failed to clear answer cache", "error", err)
	}

	info := domain.IndexInfo{
		Backend:    s.index.Name(),
		Generation: generation,
		Count:      len(entries),
		Dimension:  len(entries[0].Vector),
		BuiltAt:    time.Now().UTC(),
	}
	slog.Info("index built", "backend", info.Backend, "generation", generation, "chunks", info.Count)
	return info, nil
}

// AnswerQuestion retrieves context for question and asks the LLM. It performs
// no backend calls unless the system is ready.
func (s *RAGService) AnswerQuestion(ctx context.Context, question string, k int) domain.AnnotatedAnswer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, info := s.snapshot()
	if state != domain.StateReady {
		return messageAnswer(question, MsgNotInitialized, port.KindNotInitialized)
	}
	if strings.TrimSpace(question) == "" {
		return messageAnswer(question, MsgEmptyQuestion, port.KindEmptyQuestion)
	}

	if k != 0 {
		k = s.retriever.ClampK(k)
	}
	key := cacheKey(question, k, info.Generation)

	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("answer cache unavailable", "error", err)
	}
	if cached != nil {
		cached.Cached = true
		return *cached
	}

	slog.Info("answering question", "k", k, "question_len", len(question))
	retrieved, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		slog.Error("retrieval failed", "error", err)
		return errorAnswer(question, err)
	}

	answer := s.assembler.Answer(ctx, question, retrieved)
	if !answer.IsError {
		if err := s.cache.Set(ctx, key, &answer); err != nil {
			slog.Warn("failed to cache answer", "error", err)
		}
	}
	return answer
}

// ListDocuments describes every PDF in the managed directory, by name.
func (s *RAGService) ListDocuments(_ context.Context) []domain.DocumentSummary {
	entries, err := os.ReadDir(s.opts.PDFDirectory)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to list documents", "dir", s.opts.PDFDirectory, "error", err)
		}
		return []domain.DocumentSummary{}
	}

	docs := make([]domain.DocumentSummary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, domain.DocumentSummary{
			Name:      e.Name(),
			SizeBytes: fi.Size(),
			SizeMB:    float64(fi.Size()) / (1024 * 1024),
			ModTime:   fi.ModTime(),
		})
	}
	return docs
}

// Status reports the last committed state. It does not wait for a build in
// progress.
func (s *RAGService) Status(ctx context.Context) domain.SystemStatus {
	state, info := s.snapshot()

	status := domain.SystemStatus{
		State:          state,
		EmbeddingModel: s.embedder.ModelName(),
		LLMModel:       s.llm.ModelName(),
		Documents:      len(s.ListDocuments(ctx)),
	}
	if state == domain.StateReady {
		status.Index = info
	} else {
		status.Index = domain.IndexInfo{Backend: s.index.Name()}
	}
	return status
}

func (s *RAGService) ExampleQuestions() []string {
	return append([]string(nil), s.opts.ExampleQuestions...)
}

func (s *RAGService) SourceLimits() (defaultK, maxK int) {
	return s.opts.DefaultK, s.opts.MaxK
}

func (s *RAGService) snapshot() (domain.SystemState, domain.IndexInfo) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state, s.info
}

// setReady commits a built or loaded index. Callers hold mu.
func (s *RAGService) setReady(info domain.IndexInfo) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = domain.StateReady
	s.info = info
}

// ping checks every backend that supports it.
func (s *RAGService) ping(ctx context.Context) error {
	for _, b := range []any{s.embedder, s.llm} {
		pinger, canPing := b.(port.Pinger)
		if !canPing {
			continue
		}
		if err := pinger.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *RAGService) validateUpload(path, name string) error {
	if !isPDF(name) {
		return fmt.Errorf("%w: %s is not a PDF file", port.ErrInvalidDocument, name)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", port.ErrInvalidDocument, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", port.ErrInvalidDocument, name)
	}
	if s.opts.MaxPDFBytes > 0 && fi.Size() > s.opts.MaxPDFBytes {
		return fmt.Errorf("%w: %s is %.1f MB, limit is %.0f MB", port.ErrInvalidDocument, name,
			float64(fi.Size())/(1024*1024), float64(s.opts.MaxPDFBytes)/(1024*1024))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create pdf directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// cacheKey includes the index generation so answers never outlive the
// corpus they were built from.
func cacheKey(question string, k int, generation string) string {
	q := strings.ToLower(strings.Join(strings.Fields(question), " "))
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", q, k, generation)))
	return hex.EncodeToString(hash[:])
}

func ok(msg string) domain.StatusMessage {
	return domain.StatusMessage{OK: true, Message: msg}
}

func failure(err error, format string, args ...any) domain.StatusMessage {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	slog.Warn("operation failed", "kind", port.Kind(err), "error", err)
	return domain.StatusMessage{OK: false, Kind: port.Kind(err), Message: msg}
}

func messageAnswer(question, msg, kind string) domain.AnnotatedAnswer {
	return domain.AnnotatedAnswer{
		Question:  question,
		Answer:    msg,
		Formatted: msg,
		IsError:   true,
		ErrorKind: kind,
	}
}
