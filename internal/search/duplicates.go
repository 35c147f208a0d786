package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/vector"
	"github.com/hyperjump/coskb/pkg/utils"
)

const (
	// DefaultDuplicateExactLimit is the largest corpus scanned pairwise when none is configured.
	DefaultDuplicateExactLimit = 5000
	// duplicateNeighbours is how many neighbours each document is checked against
	// once the corpus is too large for the pairwise scan.
	duplicateNeighbours = 20
)

// FindDuplicates returns every unordered pair of documents whose vector similarity is at
// least threshold, each pair once with the lower id on the left.
func (e *Engine) FindDuplicates(ctx context.Context, threshold float64) (*models.DuplicatesResponse, error) {
	if err := models.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	exactLimit := e.config.DuplicateExactLimit
	if exactLimit <= 0 {
		exactLimit = DefaultDuplicateExactLimit
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	resp := &models.DuplicatesResponse{Threshold: threshold, Duplicates: []*models.DocumentPair{}}
	err := e.index.Read(ctx, func(r docindex.Reader) error {
		var (
			pairs []vector.Pair
			err   error
		)
		if r.Size() <= exactLimit {
			pairs, err = r.Pairs(ctx, threshold)
		} else {
			e.logger.Info("corpus above exact duplicate scan bound, using neighbour queries",
				zap.Int("documents", r.Size()), zap.Int("bound", exactLimit))
			pairs, err = neighbourPairs(ctx, r, threshold)
		}
		if err != nil {
			return err
		}
		resp.Duplicates, err = e.hydratePairs(ctx, r, pairs)
		return err
	})
	if err != nil {
		return nil, e.timeoutErr(ctx, err)
	}
	resp.Count = len(resp.Duplicates)
	return resp, nil
}

// neighbourPairs queries the nearest neighbours of every document and keeps each
// qualifying pair once in canonical order.
func neighbourPairs(ctx context.Context, r docindex.Reader, threshold float64) ([]vector.Pair, error) {
	seen := make(map[[2]int64]struct{})
	var pairs []vector.Pair
	for _, id := range r.IDs() {
		vec, ok := r.Vector(id)
		if !ok {
			continue
		}
		hits, err := r.Nearest(ctx, vec, duplicateNeighbours+1)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if h.ID == id || !vector.Reaches(h.Score, threshold) {
				continue
			}
			left, right := id, h.ID
			if left > right {
				left, right = right, left
			}
			key := [2]int64{left, right}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			pairs = append(pairs, vector.Pair{Left: left, Right: right, Score: h.Score})
		}
	}
	vector.SortPairs(pairs)
	return pairs, nil
}

func (e *Engine) hydratePairs(ctx context.Context, r docindex.Reader, pairs []vector.Pair) ([]*models.DocumentPair, error) {
	out := make([]*models.DocumentPair, 0, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}
	idSet := make(map[int64]struct{}, 2*len(pairs))
	for _, p := range pairs {
		idSet[p.Left] = struct{}{}
		idSet[p.Right] = struct{}{}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	titles, err := r.Titles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		pair := &models.DocumentPair{
			LeftID: p.Left, RightID: p.Right, Score: utils.RoundScore(p.Score),
			LeftTitle: titles[p.Left], RightTitle: titles[p.Right],
		}
		out = append(out, pair)
	}
	return out, nil
}
