package cache

import (
	"context"

	"github.com/arturoeanton/medguide-qa/internal/domain"
)

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.AnnotatedAnswer, error) { return nil, nil }
func (Noop) Set(context.Context, string, *domain.AnnotatedAnswer) error { return nil }
func (Noop) Clear(context.Context) error { return nil }
