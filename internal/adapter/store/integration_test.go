package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// Set TEST_DATABASE_URL to a database with the pgvector extension available.
func TestPostgresVectorStore_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pg, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	require.NoError(t, pg.Migrate(ctx))
	_, err = pg.DB().ExecContext(ctx, `DELETE FROM guideline_index_meta; DELETE FROM guideline_chunks;`)
	require.NoError(t, err)

	idx := NewVectorStore(pg)
	defer idx.Close()
	indexContract(t, idx)
}

// Set TEST_MILVUS_ADDRESS to a running Milvus instance.
func TestMilvusIndex_Contract(t *testing.T) {
	addr := os.Getenv("TEST_MILVUS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_MILVUS_ADDRESS not set")
	}
	ctx := context.Background()

	idx, err := NewMilvusIndex(ctx, MilvusConfig{
		Address:    addr,
		Collection: "medguide_test_" + strings.ToLower(ulid.Make().String()),
		Timeout:    30 * time.Second,
	})
	require.NoError(t, err)
	defer idx.Close()
	indexContract(t, idx)
}
