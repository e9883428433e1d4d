package store

import (
	"context"
	"fmt"

	"github.com/arturoeanton/medguide-qa/internal/port"
	"github.com/arturoeanton/medguide-qa/pkg/config"
)

// Open returns the vector index selected by cfg.IndexBackend.
func Open(ctx context.Context, cfg *config.Config) (port.VectorIndex, error) {
	switch cfg.IndexBackend {
	case "memory":
		return NewMemoryIndex(), nil
	case "sqlite", "":
		return NewSQLiteIndex(cfg.VectorDBDirectory), nil
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return NewVectorStore(pg), nil
	case "milvus":
		return NewMilvusIndex(ctx, MilvusConfig{
			Address:    cfg.MilvusAddress,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			Database:   cfg.MilvusDatabase,
			Collection: cfg.MilvusCollection,
			Timeout:    cfg.RequestTimeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", port.ErrConfiguration, cfg.IndexBackend)
	}
}
