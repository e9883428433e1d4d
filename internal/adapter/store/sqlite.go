package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// IndexFileName is the database file inside the vector directory.
const IndexFileName = "index.db"

// Ensure SQLiteIndex implements the interface.
var _ port.VectorIndex = (*SQLiteIndex)(nil)

// SQLiteIndex persists the index as a single SQLite file and serves queries
// from memory. A build writes a new file next to the live one and renames it
// into place, so a failed build never touches the previous index.
type SQLiteIndex struct {
	dir string

	mu   sync.RWMutex
	flat *flatIndex
	info domain.IndexInfo
}

// NewSQLiteIndex creates an index stored under dir.
func NewSQLiteIndex(dir string) *SQLiteIndex {
	return &SQLiteIndex{dir: dir}
}

func (s *SQLiteIndex) Name() string { return "sqlite" }

func (s *SQLiteIndex) path() string { return filepath.Join(s.dir, IndexFileName) }

func (s *SQLiteIndex) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat index: %w", err)
	}
	return true, nil
}

func (s *SQLiteIndex) Build(ctx context.Context, entries []domain.EmbeddedChunk, generation string) error {
	entries = cloneEntries(entries)
	flat, err := newFlatIndex(entries)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf("index-%s.db.tmp", generation))
	builtAt := time.Now().UTC()
	if err := writeSQLiteIndex(ctx, tmp, entries, generation, flat.dim, builtAt); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flat = flat
	s.info = domain.IndexInfo{
		Backend:    s.Name(),
		Generation: generation,
		Count:      len(entries),
		Dimension:  flat.dim,
		BuiltAt:    builtAt,
	}
	slog.Debug("sqlite index written", "path", s.path(), "chunks", len(entries))
	return nil
}

func writeSQLiteIndex(ctx context.Context, path string, entries []domain.EmbeddedChunk, generation string, dim int, builtAt time.Time) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE chunks (
			id          TEXT PRIMARY KEY,
			source_file TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			vector      BLOB NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, source_file, page_number, chunk_index, content, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.SourceFile, e.PageNumber, e.ChunkIndex, e.Text, float32SliceToBytes(e.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", e.ID, err)
		}
	}

	meta := map[string]string{
		"generation": generation,
		"dimension":  strconv.Itoa(dim),
		"count":      strconv.Itoa(len(entries)),
		"metric":     MetricCosine,
		"built_at":   builtAt.Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads the persisted file into memory.
func (s *SQLiteIndex) Load(ctx context.Context) (domain.IndexInfo, error) {
	ok, err := s.Exists(ctx)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	if !ok {
		return domain.IndexInfo{}, port.ErrIndexNotFound
	}

	db, err := sql.Open("sqlite", s.path())
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("open index file: %w", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	if meta["metric"] != MetricCosine {
		return domain.IndexInfo{}, fmt.Errorf("%w: index was built with metric %q", port.ErrConfiguration, meta["metric"])
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, source_file, page_number, chunk_index, content, vector FROM chunks ORDER BY rowid`)
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	var entries []domain.EmbeddedChunk
	for rows.Next() {
		var (
			e    domain.EmbeddedChunk
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.SourceFile, &e.PageNumber, &e.ChunkIndex, &e.Text, &blob); err != nil {
			return domain.IndexInfo{}, fmt.Errorf("scan chunk: %w", err)
		}
		if e.Vector, err = bytesToFloat32Slice(blob); err != nil {
			return domain.IndexInfo{}, fmt.Errorf("decode chunk %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.IndexInfo{}, fmt.Errorf("read chunks: %w", err)
	}

	flat, err := newFlatIndex(entries)
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("load index: %w", err)
	}
	if want, _ := strconv.Atoi(meta["dimension"]); want != flat.dim {
		return domain.IndexInfo{}, fmt.Errorf("%w: meta says %d dimensions, vectors have %d", port.ErrDimensionMismatch, want, flat.dim)
	}
	builtAt, _ := time.Parse(time.RFC3339Nano, meta["built_at"])

	info := domain.IndexInfo{
		Backend:    s.Name(),
		Generation: meta["generation"],
		Count:      len(entries),
		Dimension:  flat.dim,
		BuiltAt:    builtAt,
	}

	s.mu.Lock()
	s.flat = flat
	s.info = info
	s.mu.Unlock()
	return info, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *SQLiteIndex) Query(_ context.Context, vector []float32, k int) (domain.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.flat == nil {
		return nil, port.ErrIndexNotFound
	}
	return s.flat.query(vector, k)
}

func (s *SQLiteIndex) Close() error { return nil }
