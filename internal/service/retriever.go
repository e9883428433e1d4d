package service

import (
	"context"
	"fmt"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Retriever embeds a question and returns its nearest chunks.
type Retriever struct {
	embedder port.Embedder
	index    port.VectorIndex
	maxK     int
}

// NewRetriever creates a retriever that returns at most maxK chunks.
func NewRetriever(embedder port.Embedder, index port.VectorIndex, maxK int) *Retriever {
	if maxK < 1 {
		maxK = 1
	}
	return &Retriever{embedder: embedder, index: index, maxK: maxK}
}

// ClampK bounds k to [1, maxK].
func (r *Retriever) ClampK(k int) int {
	return max(1, min(k, r.maxK))
}

// Retrieve returns up to k chunks ordered by descending similarity.
// k == 0 yields an empty result without touching the embedder; any other
// out-of-range k is clamped.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (domain.QueryResult, error) {
	if k == 0 {
		return domain.QueryResult{}, nil
	}
	k = r.ClampK(k)

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	result, err := r.index.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return result, nil
}
