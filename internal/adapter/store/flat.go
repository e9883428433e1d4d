package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// MetricCosine is the only similarity metric; it is recorded with every
// persisted index and checked on load.
const MetricCosine = "cosine"

// flatIndex answers queries by exact cosine scan over all entries.
type flatIndex struct {
	entries []domain.EmbeddedChunk
	norms   []float64
	dim     int
}

func newFlatIndex(entries []domain.EmbeddedChunk) (*flatIndex, error) {
	dim, err := uniformDimension(entries)
	if err != nil {
		return nil, err
	}
	norms := make([]float64, len(entries))
	for i, e := range entries {
		norms[i] = norm(e.Vector)
	}
	return &flatIndex{entries: entries, norms: norms, dim: dim}, nil
}

func (f *flatIndex) query(vector []float32, k int) (domain.QueryResult, error) {
	if k <= 0 || len(f.entries) == 0 {
		return domain.QueryResult{}, nil
	}
	if len(vector) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", port.ErrDimensionMismatch, len(vector), f.dim)
	}

	qn := norm(vector)
	scored := make(domain.QueryResult, len(f.entries))
	for i, e := range f.entries {
		scored[i] = domain.ScoredChunk{Chunk: e.Chunk, Similarity: cosine(vector, e.Vector, qn, f.norms[i])}
	}
	sortResult(scored)

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// sortResult orders by descending similarity, then ascending chunk ID.
func sortResult(r domain.QueryResult) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Similarity != r[j].Similarity {
			return r[i].Similarity > r[j].Similarity
		}
		return r[i].ID < r[j].ID
	})
}

// uniformDimension returns the shared vector length of entries.
func uniformDimension(entries []domain.EmbeddedChunk) (int, error) {
	if len(entries) == 0 {
		return 0, port.ErrEmptyCorpus
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return 0, fmt.Errorf("%w: chunk %s has an empty vector", port.ErrDimensionMismatch, entries[0].ID)
	}
	for _, e := range entries[1:] {
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", port.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return dim, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
