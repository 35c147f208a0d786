// Package indexer turns source documents into Document Index entries.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/metrics"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/pkg/utils"
)

// PassageEmbedder embeds document passages. *embedding.Gateway implements it.
type PassageEmbedder interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// Source lists the documents that should be indexed.
type Source interface {
	Documents(ctx context.Context) ([]models.SourceDocument, error)
}

// Indexer embeds source documents and upserts them into the document index.
// Runs are serialized: a second Reindex waits for the first to finish.
type Indexer struct {
	index         *docindex.DocumentIndex
	embedder      PassageEmbedder
	config        *config.IndexerConfig
	previewLength int
	pool          *ants.Pool
	logger        *zap.Logger

	// mu is the reindex lock.
	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for run summaries and per-document debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithPreviewLength sets the number of runes kept as content preview.
func WithPreviewLength(n int) IndexerOption {
	return func(idx *Indexer) { idx.previewLength = n }
}

// NewIndexer creates an indexer. Call Release when done to stop its worker pool.
func NewIndexer(index *docindex.DocumentIndex, embedder PassageEmbedder, cfg *config.IndexerConfig, opts ...IndexerOption) (*Indexer, error) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	idx := &Indexer{
		index:         index,
		embedder:      embedder,
		config:        cfg,
		previewLength: 300,
		pool:          pool,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Release stops the worker pool.
func (idx *Indexer) Release() {
	idx.pool.Release()
}

// ReindexSource pulls every document from src and reindexes them.
func (idx *Indexer) ReindexSource(ctx context.Context, src Source) (*models.ReindexResult, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, models.Upstream("document source", err)
	}
	return idx.Reindex(ctx, docs)
}

// prepared is a source document in the form stored by the index, before embedding.
type prepared struct {
	doc     *models.Document
	passage string
}

// Reindex embeds and upserts docs. Reindexing the same documents again yields the same
// entries. All embeddings are computed before anything is written, so an embedding
// failure leaves the index untouched. A failed upsert stops the run; documents
// upserted before it stay indexed.
func (idx *Indexer) Reindex(ctx context.Context, docs []models.SourceDocument) (*models.ReindexResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()
	runID := uuid.New().String()
	logger := idx.logger.With(zap.String("run_id", runID))
	logger.Info("reindex started", zap.Int("documents", len(docs)))

	items := idx.prepare(docs)
	vectors, err := idx.embed(ctx, items)
	if err != nil {
		metrics.ReindexDocumentsTotal.WithLabelValues("failed").Add(float64(len(items)))
		logger.Error("reindex aborted: embedding failed", zap.Error(err))
		return nil, err
	}

	result := &models.ReindexResult{RunID: runID}
	now := time.Now().UTC()
	for i, it := range items {
		it.doc.Vector = vectors[i]
		it.doc.UpdatedAt = now
		if err := idx.index.Upsert(ctx, it.doc); err != nil {
			metrics.ReindexDocumentsTotal.WithLabelValues("failed").Inc()
			logger.Error("reindex aborted: upsert failed",
				zap.Int64("page_id", it.doc.ID), zap.Int("indexed", result.Indexed), zap.Error(err))
			return result, fmt.Errorf("upsert document %d: %w", it.doc.ID, err)
		}
		result.Indexed++
		metrics.ReindexDocumentsTotal.WithLabelValues("indexed").Inc()
		logger.Debug("document indexed", zap.Int64("page_id", it.doc.ID))
	}

	if idx.config.PruneMissing {
		pruned, err := idx.prune(ctx, items)
		result.Pruned = pruned
		if err != nil {
			logger.Error("prune failed", zap.Error(err))
			return result, err
		}
	}

	elapsed := time.Since(start)
	result.Duration = elapsed.Milliseconds()
	metrics.ReindexDuration.Observe(elapsed.Seconds())
	metrics.IndexedDocuments.Set(float64(idx.index.Size()))
	logger.Info("reindex finished",
		zap.Int("indexed", result.Indexed), zap.Int("pruned", result.Pruned), zap.Duration("elapsed", elapsed))
	return result, nil
}

// prepare normalizes docs into index records. Later duplicates of an id replace earlier ones.
func (idx *Indexer) prepare(docs []models.SourceDocument) []prepared {
	pos := make(map[int64]int, len(docs))
	items := make([]prepared, 0, len(docs))
	for _, src := range docs {
		title := Preprocess(src.Title)
		text := Preprocess(src.Text)
		lines := PreprocessLines(src.Text)
		it := prepared{
			doc: &models.Document{
				ID:             src.ID,
				Title:          title,
				Path:           src.Path,
				ContentPreview: utils.Truncate(lines, idx.previewLength),
				LexicalText:    title + " " + text,
			},
			passage: title + "\n" + lines,
		}
		if i, ok := pos[src.ID]; ok {
			items[i] = it
			continue
		}
		pos[src.ID] = len(items)
		items = append(items, it)
	}
	return items
}

// embed computes passage vectors in batches on the worker pool. The first error
// cancels the remaining batches.
func (idx *Indexer) embed(ctx context.Context, items []prepared) ([][]float32, error) {
	vectors := make([][]float32, len(items))
	if len(items) == 0 {
		return vectors, nil
	}
	batchSize := idx.config.BatchSize
	if batchSize < 1 {
		batchSize = 32
	}

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for lo := 0; lo < len(items); lo += batchSize {
		hi := min(lo+batchSize, len(items))
		texts := make([]string, 0, hi-lo)
		for _, it := range items[lo:hi] {
			texts = append(texts, it.passage)
		}
		wg.Add(1)
		submitErr := idx.pool.Submit(func() {
			defer wg.Done()
			if bctx.Err() != nil {
				return
			}
			out, err := idx.embedder.EmbedPassages(bctx, texts)
			if err != nil {
				fail(err)
				return
			}
			if len(out) != len(texts) {
				fail(fmt.Errorf("%w: embedding returned %d vectors for %d passages", models.ErrUpstreamUnavailable, len(out), len(texts)))
				return
			}
			copy(vectors[lo:hi], out)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", submitErr))
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
	return vectors, nil
}

// prune deletes indexed documents that are not among items.
func (idx *Indexer) prune(ctx context.Context, items []prepared) (int, error) {
	keep := make(map[int64]struct{}, len(items))
	for _, it := range items {
		keep[it.doc.ID] = struct{}{}
	}
	ids, err := idx.index.IDs(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := idx.index.Delete(ctx, id); err != nil {
			return pruned, fmt.Errorf("prune document %d: %w", id, err)
		}
		pruned++
		metrics.ReindexDocumentsTotal.WithLabelValues("pruned").Inc()
	}
	return pruned, nil
}
