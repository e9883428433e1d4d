package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

func TestSQLiteIndex_Contract(t *testing.T) {
	indexContract(t, NewSQLiteIndex(t.TempDir()))
}

func TestSQLiteIndex_ReloadWithoutRebuild(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, NewSQLiteIndex(dir).Build(ctx, sampleEntries(), "GEN1"))
	assert.FileExists(t, filepath.Join(dir, IndexFileName))

	reopened := NewSQLiteIndex(dir)
	ok, err := reopened.Exists(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	info, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GEN1", info.Generation)
	assert.Equal(t, 4, info.Count)
	assert.False(t, info.BuiltAt.IsZero())

	res, err := reopened.Query(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "d", res[0].ID)
	assert.Equal(t, "guideline.pdf", res[0].SourceFile)
	assert.Equal(t, 4, res[0].PageNumber)
	assert.Equal(t, "text of d", res[0].Text)
}

func TestSQLiteIndex_FailedBuildKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	idx := NewSQLiteIndex(dir)
	require.NoError(t, idx.Build(ctx, sampleEntries(), "GEN1"))

	bad := []domain.EmbeddedChunk{entry("x", 1, 1, 0), entry("y", 1, 1)}
	err := idx.Build(ctx, bad, "GEN2")
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)

	err = idx.Build(ctx, nil, "GEN3")
	assert.ErrorIs(t, err, port.ErrEmptyCorpus)

	info, err := NewSQLiteIndex(dir).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GEN1", info.Generation)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "no temporary files left behind")
}

func TestSQLiteIndex_RebuildReplaces(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	idx := NewSQLiteIndex(dir)
	require.NoError(t, idx.Build(ctx, sampleEntries(), "GEN1"))
	require.NoError(t, idx.Build(ctx, []domain.EmbeddedChunk{entry("only", 9, 1, 1)}, "GEN2"))

	info, err := NewSQLiteIndex(dir).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GEN2", info.Generation)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 2, info.Dimension)
}

func TestSQLiteIndex_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFileName), []byte("not a database"), 0o644))

	_, err := NewSQLiteIndex(dir).Load(context.Background())
	assert.Error(t, err)
}
