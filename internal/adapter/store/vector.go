package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Ensure VectorStore implements the interface.
var _ port.VectorIndex = (*VectorStore)(nil)

// VectorStore is a pgvector-backed index. A build replaces all rows inside
// one transaction, so readers see either the old or the new corpus.
type VectorStore struct {
	store *PostgresStore

	mu        sync.RWMutex
	dimension int
}

// NewVectorStore creates a vector index backed by the given Postgres store.
func NewVectorStore(store *PostgresStore) *VectorStore {
	return &VectorStore{store: store}
}

func (v *VectorStore) Name() string { return "postgres" }

func (v *VectorStore) Exists(ctx context.Context) (bool, error) {
	var n int
	err := v.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guideline_index_meta`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: read index meta: %w", port.ErrBackendUnavailable, err)
	}
	return n > 0, nil
}

// Build persists the entries, replacing the previous index atomically.
func (v *VectorStore) Build(ctx context.Context, entries []domain.EmbeddedChunk, generation string) error {
	dim, err := uniformDimension(entries)
	if err != nil {
		return err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guideline_chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO guideline_chunks (id, source_file, page_number, chunk_index, content, vector)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SourceFile, e.PageNumber, e.ChunkIndex, e.Text, pgvector.NewVector(e.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO guideline_index_meta (id, generation, dimension, chunks, metric, built_at)
		 VALUES (1, $1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			generation = EXCLUDED.generation,
			dimension = EXCLUDED.dimension,
			chunks = EXCLUDED.chunks,
			metric = EXCLUDED.metric,
			built_at = EXCLUDED.built_at`,
		generation, dim, len(entries), MetricCosine)
	if err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	v.mu.Lock()
	v.dimension = dim
	v.mu.Unlock()
	return nil
}

func (v *VectorStore) Load(ctx context.Context) (domain.IndexInfo, error) {
	info := domain.IndexInfo{Backend: v.Name()}
	var metric string
	err := v.store.db.QueryRowContext(ctx,
		`SELECT generation, dimension, chunks, metric, built_at FROM guideline_index_meta WHERE id = 1`,
	).Scan(&info.Generation, &info.Dimension, &info.Count, &metric, &info.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexInfo{}, port.ErrIndexNotFound
	}
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("%w: read index meta: %w", port.ErrBackendUnavailable, err)
	}
	if metric != MetricCosine {
		return domain.IndexInfo{}, fmt.Errorf("%w: index was built with metric %q", port.ErrConfiguration, metric)
	}
	info.BuiltAt = info.BuiltAt.In(time.UTC)

	v.mu.Lock()
	v.dimension = info.Dimension
	v.mu.Unlock()
	return info, nil
}

// Query performs a cosine similarity search. Equal distances are broken by
// chunk ID so results are deterministic.
func (v *VectorStore) Query(ctx context.Context, vector []float32, k int) (domain.QueryResult, error) {
	if k <= 0 {
		return domain.QueryResult{}, nil
	}

	v.mu.RLock()
	dim := v.dimension
	v.mu.RUnlock()
	if dim == 0 {
		return nil, port.ErrIndexNotFound
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", port.ErrDimensionMismatch, len(vector), dim)
	}

	rows, err := v.store.db.QueryContext(ctx,
		`SELECT id, source_file, page_number, chunk_index, content,
		        1 - (vector <=> $1) AS similarity
		 FROM guideline_chunks
		 ORDER BY vector <=> $1, id
		 LIMIT $2`,
		pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: search similar: %w", port.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	results := domain.QueryResult{}
	for rows.Next() {
		var sc domain.ScoredChunk
		if err := rows.Scan(
			&sc.ID, &sc.SourceFile, &sc.PageNumber, &sc.ChunkIndex, &sc.Text, &sc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// Close releases the connection pool.
func (v *VectorStore) Close() error {
	return v.store.Close()
}
