package ai

import (
	"fmt"
	"sync"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

// dimensionGuard pins the embedding dimension to the first vector seen.
type dimensionGuard struct {
	mu  sync.Mutex
	dim int
}

func (g *dimensionGuard) check(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n == 0 {
		return fmt.Errorf("%w: empty embedding", port.ErrDimensionMismatch)
	}
	if g.dim == 0 {
		g.dim = n
		return nil
	}
	if n != g.dim {
		return fmt.Errorf("%w: got %d, want %d", port.ErrDimensionMismatch, n, g.dim)
	}
	return nil
}

func (g *dimensionGuard) dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}
