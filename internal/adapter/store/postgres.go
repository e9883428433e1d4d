package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

// PostgresStore owns the connection pool and the schema of the pgvector index.
type PostgresStore struct {
	db *sql.DB
}

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS guideline_chunks (
	id          TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	vector      vector NOT NULL
);

CREATE INDEX IF NOT EXISTS guideline_chunks_source_idx ON guideline_chunks (source_file, page_number);

CREATE TABLE IF NOT EXISTS guideline_index_meta (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	generation TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	chunks     INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	built_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", port.ErrConfiguration, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", port.ErrBackendUnavailable, err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate creates the pgvector extension and the index tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}
