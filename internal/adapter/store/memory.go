package store

import (
	"context"
	"sync"
	"time"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Ensure MemoryIndex implements the interface.
var _ port.VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex keeps everything in process memory. Nothing survives a restart.
type MemoryIndex struct {
	mu   sync.RWMutex
	flat *flatIndex
	info domain.IndexInfo
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Name() string { return "memory" }

func (m *MemoryIndex) Exists(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flat != nil, nil
}

func (m *MemoryIndex) Build(_ context.Context, entries []domain.EmbeddedChunk, generation string) error {
	flat, err := newFlatIndex(cloneEntries(entries))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.flat = flat
	m.info = domain.IndexInfo{
		Backend:    m.Name(),
		Generation: generation,
		Count:      len(entries),
		Dimension:  flat.dim,
		BuiltAt:    time.Now().UTC(),
	}
	return nil
}

func (m *MemoryIndex) Load(_ context.Context) (domain.IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.flat == nil {
		return domain.IndexInfo{}, port.ErrIndexNotFound
	}
	return m.info, nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, k int) (domain.QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.flat == nil {
		return nil, port.ErrIndexNotFound
	}
	return m.flat.query(vector, k)
}

func (m *MemoryIndex) Close() error { return nil }

func cloneEntries(entries []domain.EmbeddedChunk) []domain.EmbeddedChunk {
	out := make([]domain.EmbeddedChunk, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Vector = append([]float32(nil), e.Vector...)
	}
	return out
}
