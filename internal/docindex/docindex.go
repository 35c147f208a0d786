// Package docindex joins the record store, the vector index and the lexical index
// into one Document Index. Writes are atomic per document across all three; reads
// run against a consistent snapshot.
package docindex

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/storage"
	"github.com/hyperjump/coskb/internal/vector"
)

// DocumentIndex is the single logical index over all documents. SQLite holds the
// authoritative rows; the vector and lexical indexes are derived from them.
type DocumentIndex struct {
	store       *storage.SQLiteStorage
	vectors     vector.VectorIndex
	lexical     keyword.LexicalIndex
	lexicalPath string
	logger      *zap.Logger

	// mu serializes writers against readers so a reader never sees a
	// document updated in one index and not yet in the other.
	mu sync.RWMutex
}

// Option configures a DocumentIndex.
type Option func(*DocumentIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *DocumentIndex) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithLexicalPath records the lexical index directory for disk usage reporting.
func WithLexicalPath(path string) Option {
	return func(d *DocumentIndex) { d.lexicalPath = path }
}

// Open loads every stored vector into the vector index and brings the lexical index
// in line with the store when their contents diverge.
func Open(ctx context.Context, store *storage.SQLiteStorage, vectors vector.VectorIndex, lexical keyword.LexicalIndex, opts ...Option) (*DocumentIndex, error) {
	d := &DocumentIndex{
		store:   store,
		vectors: vectors,
		lexical: lexical,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DocumentIndex) load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.vectors.Reset()
	texts := make(map[int64]string)
	err := d.store.ForEachDocument(ctx, func(doc *models.Document) error {
		if len(doc.Vector) != d.vectors.Dimensions() {
			return fmt.Errorf("%w: document %d has a %d-dimensional vector, index expects %d; reindex with the configured model",
				models.ErrDataIntegrity, doc.ID, len(doc.Vector), d.vectors.Dimensions())
		}
		if err := d.vectors.Upsert(doc.ID, doc.Vector); err != nil {
			return err
		}
		texts[doc.ID] = doc.LexicalText
		return nil
	})
	if err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}

	lexIDs, err := d.lexical.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list lexical ids: %w", err)
	}
	storeIDs := d.vectors.IDs()
	if slices.Equal(lexIDs, storeIDs) {
		d.logger.Info("document index loaded", zap.Int("documents", len(storeIDs)))
		return nil
	}

	d.logger.Warn("lexical index out of sync with store, rebuilding",
		zap.Int("store", len(storeIDs)), zap.Int("lexical", len(lexIDs)))
	for _, id := range lexIDs {
		if _, ok := texts[id]; !ok {
			if err := d.lexical.Delete(ctx, id); err != nil {
				return fmt.Errorf("rebuild lexical index: %w", err)
			}
		}
	}
	if err := d.lexical.IndexBatch(ctx, texts); err != nil {
		return fmt.Errorf("rebuild lexical index: %w", err)
	}
	d.logger.Info("document index loaded", zap.Int("documents", len(storeIDs)))
	return nil
}

// Upsert stores doc in all three indexes or in none of them.
func (d *DocumentIndex) Upsert(ctx context.Context, doc *models.Document) error {
	if len(doc.Vector) != d.vectors.Dimensions() {
		return fmt.Errorf("document %d: vector dimension %d, expected %d", doc.ID, len(doc.Vector), d.vectors.Dimensions())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, hadPrev := d.previousText(ctx, doc.ID)

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return models.Upstream("index storage", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertDocument(ctx, doc); err != nil {
		return models.Upstream("index storage", err)
	}
	if err := d.lexical.Index(ctx, doc.ID, doc.LexicalText); err != nil {
		return models.Upstream("lexical index", err)
	}
	if err := tx.Commit(); err != nil {
		d.restoreLexical(doc.ID, prev, hadPrev)
		return models.Upstream("index storage", err)
	}
	// dimensions were checked above, so this cannot fail
	_ = d.vectors.Upsert(doc.ID, doc.Vector)
	return nil
}

// Delete removes id from all three indexes. Unknown ids are not an error.
func (d *DocumentIndex) Delete(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, hadPrev := d.previousText(ctx, id)

	tx, err := d.store.Begin(ctx)
	if err != nil {
		return models.Upstream("index storage", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.DeleteDocument(ctx, id); err != nil {
		return models.Upstream("index storage", err)
	}
	if err := d.lexical.Delete(ctx, id); err != nil {
		return models.Upstream("lexical index", err)
	}
	if err := tx.Commit(); err != nil {
		d.restoreLexical(id, prev, hadPrev)
		return models.Upstream("index storage", err)
	}
	d.vectors.Delete(id)
	return nil
}

func (d *DocumentIndex) previousText(ctx context.Context, id int64) (string, bool) {
	doc, err := d.store.GetDocument(ctx, id)
	if err != nil {
		return "", false
	}
	return doc.LexicalText, true
}

// restoreLexical puts the lexical entry back after a failed commit.
func (d *DocumentIndex) restoreLexical(id int64, text string, existed bool) {
	var err error
	if existed {
		err = d.lexical.Index(context.Background(), id, text)
	} else {
		err = d.lexical.Delete(context.Background(), id)
	}
	if err != nil {
		d.logger.Error("failed to restore lexical entry after aborted write",
			zap.Int64("page_id", id), zap.Error(err))
	}
}

// Read runs fn against a consistent snapshot: no write is applied while fn runs.
// fn may start goroutines that use the Reader, but must wait for them before returning.
func (d *DocumentIndex) Read(ctx context.Context, fn func(r Reader) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(Reader{d: d})
}

// IDs returns every stored document id in ascending order.
func (d *DocumentIndex) IDs(ctx context.Context) ([]int64, error) {
	ids, err := d.store.IDs(ctx)
	if err != nil {
		return nil, models.Upstream("index storage", err)
	}
	return ids, nil
}

// Verify compares the id sets of the record store, the vector index and the lexical
// index and reports any difference as models.ErrDataIntegrity.
func (d *DocumentIndex) Verify(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	storeIDs, err := d.store.IDs(ctx)
	if err != nil {
		return models.Upstream("index storage", err)
	}
	lexIDs, err := d.lexical.IDs(ctx)
	if err != nil {
		return models.Upstream("lexical index", err)
	}
	vecIDs := d.vectors.IDs()

	if missing := difference(storeIDs, vecIDs); len(missing) > 0 {
		return fmt.Errorf("%w: %d documents missing from vector index (e.g. %d)", models.ErrDataIntegrity, len(missing), missing[0])
	}
	if missing := difference(storeIDs, lexIDs); len(missing) > 0 {
		return fmt.Errorf("%w: %d documents missing from lexical index (e.g. %d)", models.ErrDataIntegrity, len(missing), missing[0])
	}
	if extra := difference(vecIDs, storeIDs); len(extra) > 0 {
		return fmt.Errorf("%w: %d vector entries without a stored document (e.g. %d)", models.ErrDataIntegrity, len(extra), extra[0])
	}
	if extra := difference(lexIDs, storeIDs); len(extra) > 0 {
		return fmt.Errorf("%w: %d lexical entries without a stored document (e.g. %d)", models.ErrDataIntegrity, len(extra), extra[0])
	}
	return nil
}

// Stats reports document counts, the last update time and disk usage.
func (d *DocumentIndex) Stats(ctx context.Context) (*models.Stats, error) {
	count, last, err := d.store.Stats(ctx)
	if err != nil {
		return nil, models.Upstream("index storage", err)
	}
	lexCount, err := d.lexical.DocCount()
	if err != nil {
		return nil, models.Upstream("lexical index", err)
	}
	stats := &models.Stats{
		IndexedPages:     count,
		LastIndexedAt:    last,
		VectorIndexSize:  d.vectors.Size(),
		LexicalIndexSize: lexCount,
	}
	if n, err := d.store.DiskUsage(); err == nil {
		stats.DiskUsageBytes += n
	}
	if n, err := storage.DiskUsageBytes(d.lexicalPath); err == nil {
		stats.DiskUsageBytes += n
	}
	return stats, nil
}

// Ping checks the record store.
func (d *DocumentIndex) Ping(ctx context.Context) error {
	if err := d.store.Ping(ctx); err != nil {
		return models.Upstream("index storage", err)
	}
	return nil
}

// Size returns the number of documents in the vector index.
func (d *DocumentIndex) Size() int {
	return d.vectors.Size()
}

// Close closes the lexical index and the record store.
func (d *DocumentIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lexErr := d.lexical.Close()
	storeErr := d.store.Close()
	if lexErr != nil {
		return lexErr
	}
	return storeErr
}

// difference returns the ids in a that are not in b. Both must be sorted ascending.
func difference(a, b []int64) []int64 {
	var out []int64
	j := 0
	for _, id := range a {
		for j < len(b) && b[j] < id {
			j++
		}
		if j >= len(b) || b[j] != id {
			out = append(out, id)
		}
	}
	return out
}
