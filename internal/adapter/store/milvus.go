package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// MilvusConfig holds connection settings for a Milvus deployment.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Ensure MilvusIndex implements the interface.
var _ port.VectorIndex = (*MilvusIndex)(nil)

// MilvusIndex stores chunks in one Milvus collection. A build fills a
// staging collection and swaps it in by rename once it is loaded.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string

	mu        sync.RWMutex
	dimension int
}

// milvusMeta is kept as JSON in the collection description.
type milvusMeta struct {
	Generation string    `json:"generation"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	Metric     string    `json:"metric"`
	BuiltAt    time.Time `json:"built_at"`
}

var milvusOutputFields = []string{"id", "source_file", "page_number", "chunk_index", "content"}

// NewMilvusIndex connects to Milvus.
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: milvus collection name is empty", port.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to milvus: %w", port.ErrBackendUnavailable, err)
	}
	return &MilvusIndex{client: c, collection: cfg.Collection}, nil
}

func (m *MilvusIndex) Name() string { return "milvus" }

func (m *MilvusIndex) Exists(ctx context.Context) (bool, error) {
	ok, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return false, fmt.Errorf("%w: check collection: %w", port.ErrBackendUnavailable, err)
	}
	return ok, nil
}

func (m *MilvusIndex) Build(ctx context.Context, entries []domain.EmbeddedChunk, generation string) error {
	dim, err := uniformDimension(entries)
	if err != nil {
		return err
	}

	meta := milvusMeta{
		Generation: generation,
		Dimension:  dim,
		Count:      len(entries),
		Metric:     MetricCosine,
		BuiltAt:    time.Now().UTC(),
	}
	staging := fmt.Sprintf("%s_%s", m.collection, strings.ToLower(generation))

	if err := m.fill(ctx, staging, entries, meta); err != nil {
		if dropErr := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(staging)); dropErr != nil {
			slog.Warn("failed to drop staging collection", "collection", staging, "error", dropErr)
		}
		return err
	}

	exists, err := m.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.collection)); err != nil {
			return fmt.Errorf("drop previous collection: %w", err)
		}
	}
	if err := m.client.RenameCollection(ctx, milvusclient.NewRenameCollectionOption(staging, m.collection)); err != nil {
		return fmt.Errorf("rename staging collection: %w", err)
	}

	m.mu.Lock()
	m.dimension = dim
	m.mu.Unlock()
	return nil
}

func (m *MilvusIndex) fill(ctx context.Context, name string, entries []domain.EmbeddedChunk, meta milvusMeta) error {
	desc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription(string(desc)).
		WithAutoID(false).
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
		WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(meta.Dimension))).
		WithField(entity.NewField().WithName("source_file").WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName("page_number").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("chunk_index").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535))

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	n := len(entries)
	var (
		ids      = make([]string, n)
		vectors  = make([][]float32, n)
		files    = make([]string, n)
		pages    = make([]int64, n)
		indexes  = make([]int64, n)
		contents = make([]string, n)
	)
	for i, e := range entries {
		ids[i] = e.ID
		vectors[i] = e.Vector
		files[i] = e.SourceFile
		pages[i] = int64(e.PageNumber)
		indexes[i] = int64(e.ChunkIndex)
		contents[i] = e.Text
	}

	_, err = m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnVarChar("id", ids),
		column.NewColumnFloatVector("embedding", meta.Dimension, vectors),
		column.NewColumnVarChar("source_file", files),
		column.NewColumnInt64("page_number", pages),
		column.NewColumnInt64("chunk_index", indexes),
		column.NewColumnVarChar("content", contents),
	))
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	flushTask, err := m.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for flush: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	idxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for index creation: %w", err)
	}

	return m.load(ctx, name)
}

func (m *MilvusIndex) load(ctx context.Context, name string) error {
	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for collection loading: %w", err)
	}
	return nil
}

func (m *MilvusIndex) Load(ctx context.Context) (domain.IndexInfo, error) {
	exists, err := m.Exists(ctx)
	if err != nil {
		return domain.IndexInfo{}, err
	}
	if !exists {
		return domain.IndexInfo{}, port.ErrIndexNotFound
	}

	coll, err := m.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(m.collection))
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("%w: describe collection: %w", port.ErrBackendUnavailable, err)
	}
	var meta milvusMeta
	if coll.Schema == nil || json.Unmarshal([]byte(coll.Schema.Description), &meta) != nil {
		return domain.IndexInfo{}, fmt.Errorf("%w: collection %s has no index metadata", port.ErrIndexNotFound, m.collection)
	}
	if meta.Metric != MetricCosine {
		return domain.IndexInfo{}, fmt.Errorf("%w: index was built with metric %q", port.ErrConfiguration, meta.Metric)
	}

	if err := m.load(ctx, m.collection); err != nil {
		return domain.IndexInfo{}, err
	}

	m.mu.Lock()
	m.dimension = meta.Dimension
	m.mu.Unlock()

	return domain.IndexInfo{
		Backend:    m.Name(),
		Generation: meta.Generation,
		Count:      meta.Count,
		Dimension:  meta.Dimension,
		BuiltAt:    meta.BuiltAt,
	}, nil
}

func (m *MilvusIndex) Query(ctx context.Context, vector []float32, k int) (domain.QueryResult, error) {
	if k <= 0 {
		return domain.QueryResult{}, nil
	}

	m.mu.RLock()
	dim := m.dimension
	m.mu.RUnlock()
	if dim == 0 {
		return nil, port.ErrIndexNotFound
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", port.ErrDimensionMismatch, len(vector), dim)
	}

	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		m.collection,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(milvusOutputFields...))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", port.ErrBackendUnavailable, err)
	}

	out := domain.QueryResult{}
	if len(results) == 0 {
		return out, nil
	}

	rs := results[0]
	for i := 0; i < rs.ResultCount; i++ {
		sc := domain.ScoredChunk{Similarity: float64(rs.Scores[i])}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case "id":
					sc.ID = col.Data()[i]
				case "source_file":
					sc.SourceFile = col.Data()[i]
				case "content":
					sc.Text = col.Data()[i]
				}
			case *column.ColumnInt64:
				switch col.Name() {
				case "page_number":
					sc.PageNumber = int(col.Data()[i])
				case "chunk_index":
					sc.ChunkIndex = int(col.Data()[i])
				}
			}
		}
		if sc.ID == "" {
			if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
				sc.ID = idCol.Data()[i]
			}
		}
		out = append(out, sc)
	}

	// Milvus does not order equal scores; restore the ID tie-break.
	sortResult(out)
	return out, nil
}

func (m *MilvusIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Close(ctx)
}
