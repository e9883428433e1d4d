package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Splitter turns page records into chunks.
type Splitter interface {
	SplitPages(pages []domain.PageRecord) []domain.Chunk
}

// Indexer runs the ingestion pipeline: load, split, embed.
type Indexer struct {
	loader    port.DocumentLoader
	splitter  Splitter
	embedder  port.Embedder
	batchSize int
	workers   int
}

// NewIndexer creates an indexer. Embedding runs batchSize texts per call on
// up to workers concurrent calls.
func NewIndexer(loader port.DocumentLoader, splitter Splitter, embedder port.Embedder, batchSize, workers int) *Indexer {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Indexer{
		loader:    loader,
		splitter:  splitter,
		embedder:  embedder,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Prepare loads every PDF in dir and returns the embedded chunks in
// document order. Any embedding failure aborts the whole run.
func (ix *Indexer) Prepare(ctx context.Context, dir string) ([]domain.EmbeddedChunk, error) {
	start := time.Now()

	ReportProgress(ctx, Progress{Stage: StageLoading})
	pages, err := ix.loader.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no PDF text found in %s", port.ErrEmptyCorpus, dir)
	}

	ReportProgress(ctx, Progress{Stage: StageSplitting, Total: len(pages)})
	chunks := ix.splitter.SplitPages(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %d pages produced no chunks", port.ErrEmptyCorpus, len(pages))
	}
	slog.Info("documents split", "pages", len(pages), "chunks", len(chunks))

	entries, err := ix.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	slog.Info("chunks embedded",
		"chunks", len(entries),
		"model", ix.embedder.ModelName(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return entries, nil
}

func (ix *Indexer) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		out      = make([]domain.EmbeddedChunk, len(chunks))
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		done     atomic.Int64
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	ReportProgress(ctx, Progress{Stage: StageEmbedding, Total: len(chunks)})

	for offset := 0; offset < len(chunks); offset += ix.batchSize {
		batch := chunks[offset:min(offset+ix.batchSize, len(chunks))]

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vectors, err := ix.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(fmt.Errorf("embed chunks %d-%d: %w", offset, offset+len(batch)-1, err))
				return
			}
			if len(vectors) != len(batch) {
				fail(fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch)))
				return
			}
			for i, c := range batch {
				out[offset+i] = domain.EmbeddedChunk{Chunk: c, Vector: vectors[i]}
			}

			n := done.Add(int64(len(batch)))
			ReportProgress(ctx, Progress{Stage: StageEmbedding, Done: int(n), Total: len(chunks)})
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding task: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
