package docindex

import (
	"context"

	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/vector"
)

// Reader reads from a DocumentIndex snapshot. It is only valid inside Read.
type Reader struct {
	d *DocumentIndex
}

// Lexical returns up to limit lexical matches for query.
func (r Reader) Lexical(ctx context.Context, query string, limit int) ([]keyword.KeywordResult, error) {
	hits, err := r.d.lexical.Search(ctx, query, limit)
	if err != nil {
		return nil, models.Upstream("lexical index", err)
	}
	return hits, nil
}

// Nearest returns the k documents closest to vec.
func (r Reader) Nearest(ctx context.Context, vec []float32, k int) ([]vector.VectorResult, error) {
	hits, err := r.d.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, models.Upstream("vector index", err)
	}
	return hits, nil
}

// Vector returns the stored vector for id.
func (r Reader) Vector(id int64) ([]float32, bool) {
	return r.d.vectors.Get(id)
}

// Pairs returns every document pair whose similarity is at least threshold.
func (r Reader) Pairs(ctx context.Context, threshold float64) ([]vector.Pair, error) {
	pairs, err := r.d.vectors.Pairs(ctx, threshold)
	if err != nil {
		return nil, models.Upstream("vector index", err)
	}
	return pairs, nil
}

// Documents loads the stored records for ids.
func (r Reader) Documents(ctx context.Context, ids []int64) (map[int64]*models.Document, error) {
	docs, err := r.d.store.GetDocuments(ctx, ids)
	if err != nil {
		return nil, models.Upstream("index storage", err)
	}
	return docs, nil
}

// Titles loads only the stored titles for ids.
func (r Reader) Titles(ctx context.Context, ids []int64) (map[int64]string, error) {
	titles, err := r.d.store.GetTitles(ctx, ids)
	if err != nil {
		return nil, models.Upstream("index storage", err)
	}
	return titles, nil
}

// Size returns the number of documents.
func (r Reader) Size() int {
	return r.d.vectors.Size()
}

// IDs returns every indexed document id in ascending order.
func (r Reader) IDs() []int64 {
	return r.d.vectors.IDs()
}
