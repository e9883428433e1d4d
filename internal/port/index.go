package port

import (
	"context"

	"github.com/arturoeanton/medguide-qa/internal/domain"
)

// VectorIndex persists embedded chunks and answers nearest-neighbour
// queries by cosine similarity.
type VectorIndex interface {
	// Name identifies the backend (sqlite, postgres, milvus, memory).
	Name() string

	// Exists reports whether a complete index is persisted.
	Exists(ctx context.Context) (bool, error)

	// Build replaces any persisted contents with entries. A failed build
	// leaves the previous index intact.
	Build(ctx context.Context, entries []domain.EmbeddedChunk, generation string) error

	// Load attaches to the persisted index without re-embedding.
	// Returns ErrIndexNotFound when nothing is persisted.
	Load(ctx context.Context) (domain.IndexInfo, error)

	// Query returns up to k entries ordered by descending similarity,
	// ties broken by chunk ID.
	Query(ctx context.Context, vector []float32, k int) (domain.QueryResult, error)

	Close() error
}

// DocumentLoader turns a directory of PDFs into page records.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]domain.PageRecord, error)
}

// AnswerCache stores answers keyed by an opaque string.
type AnswerCache interface {
	Get(ctx context.Context, key string) (*domain.AnnotatedAnswer, error) // nil, nil on miss
	Set(ctx context.Context, key string, answer *domain.AnnotatedAnswer) error
	Clear(ctx context.Context) error
}
