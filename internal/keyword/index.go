// Package keyword provides the lexical (full-text) index over document text.
package keyword

import "context"

// LexicalIndex scores documents by term overlap with a query.
type LexicalIndex interface {
	// Index stores text under id, replacing any previous entry.
	Index(ctx context.Context, id int64, text string) error
	// IndexBatch stores many entries in one write.
	IndexBatch(ctx context.Context, texts map[int64]string) error
	// Search returns up to limit matching documents ordered by descending score.
	Search(ctx context.Context, query string, limit int) ([]KeywordResult, error)
	Delete(ctx context.Context, id int64) error
	DocCount() (uint64, error)
	IDs(ctx context.Context) ([]int64, error)
	Close() error
}

// KeywordResult is a single lexical search hit.
type KeywordResult struct {
	ID    int64
	Score float64
}
