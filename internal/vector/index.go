// Package vector provides the in-memory vector index used for nearest-neighbour
// and pairwise similarity queries over document embeddings.
package vector

import (
	"context"

	"github.com/hyperjump/coskb/pkg/utils"
)

// VectorIndex stores one unit-length vector per document id.
type VectorIndex interface {
	// Upsert stores vec under id, replacing any previous vector.
	Upsert(id int64, vec []float32) error
	Get(id int64) ([]float32, bool)
	Delete(ids ...int64)
	// Search returns the k nearest vectors to query by cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	// Pairs returns every unordered pair whose similarity Reaches threshold.
	Pairs(ctx context.Context, threshold float64) ([]Pair, error)
	IDs() []int64
	Size() int
	Dimensions() int
	Reset()
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID    int64
	Score float64
}

// Pair is two documents and their cosine similarity, with Left < Right.
type Pair struct {
	Left  int64
	Right int64
	Score float64
}

// ScoreTolerance absorbs float32 rounding in stored vectors, so a pair of
// identical unit vectors still reaches a threshold of exactly 1.
const ScoreTolerance = 1e-6

// Reaches reports whether score meets threshold within ScoreTolerance.
func Reaches(score, threshold float64) bool {
	return score >= threshold-ScoreTolerance
}

// Cosine is the inner product of two unit vectors clamped to [-1, 1].
func Cosine(a, b []float32) float64 {
	return max(-1, min(1, utils.Dot(a, b)))
}
