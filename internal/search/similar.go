package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/models"
)

// DefaultSimilarLimit is the number of neighbours returned when none is configured.
const DefaultSimilarLimit = 5

// Similar returns the nearest neighbours of a stored document, never the document itself.
func (e *Engine) Similar(ctx context.Context, id int64) (*models.SimilarResponse, error) {
	limit := e.config.SimilarLimit
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	resp := &models.SimilarResponse{PageID: id}
	err := e.index.Read(ctx, func(r docindex.Reader) error {
		vec, ok := r.Vector(id)
		if !ok {
			return fmt.Errorf("document %d: %w", id, models.ErrNotFound)
		}
		hits, err := r.Nearest(ctx, vec, limit+1)
		if err != nil {
			return err
		}
		ranked := fromVector(hits)
		neighbours := ranked[:0]
		for _, res := range ranked {
			if res.DocumentID != id {
				neighbours = append(neighbours, res)
			}
		}
		resp.Similar, err = e.hydrate(ctx, r, Truncate(neighbours, limit))
		return err
	})
	if err != nil {
		return nil, e.timeoutErr(ctx, err)
	}
	return resp, nil
}
