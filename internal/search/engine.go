package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/metrics"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/internal/vector"
	"github.com/hyperjump/coskb/pkg/utils"
)

// QueryEmbedder turns a search query into a vector. *embedding.Gateway implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine runs lexical, vector and hybrid search over a document index.
type Engine struct {
	index    *docindex.DocumentIndex
	embedder QueryEmbedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for integrity warnings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(index *docindex.DocumentIndex, embedder QueryEmbedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		index:    index,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search validates query and runs it in the requested mode. An empty result is not an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (resp *models.SearchResponse, err error) {
	startTime := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(models.Kind(err))
		}
		mode := string(query.Mode)
		if !query.Mode.IsValid() {
			mode = "invalid"
		}
		metrics.SearchRequestsTotal.WithLabelValues(mode, outcome).Inc()
		metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(startTime).Seconds())
		if resp != nil {
			metrics.SearchResults.WithLabelValues(mode).Observe(float64(len(resp.Results)))
		}
	}()

	if err := query.Validate(e.config.DefaultTopK); err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var results []*models.ScoredDocument
	switch query.Mode {
	case models.ModeLexical:
		results, err = e.searchLexical(ctx, query)
	case models.ModeVector:
		results, err = e.searchVector(ctx, query)
	case models.ModeHybrid:
		results, err = e.searchHybrid(ctx, query)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedMode, query.Mode)
	}
	if err != nil {
		return nil, e.timeoutErr(ctx, err)
	}
	if results == nil {
		results = []*models.ScoredDocument{}
	}

	return &models.SearchResponse{
		Query:     query.Query,
		Mode:      query.Mode,
		Results:   results,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}

func (e *Engine) searchLexical(ctx context.Context, query *models.SearchQuery) ([]*models.ScoredDocument, error) {
	var out []*models.ScoredDocument
	err := e.index.Read(ctx, func(r docindex.Reader) error {
		// fetch every match so equal scores at the cut are broken by id, not by bleve
		hits, err := r.Lexical(ctx, query.Query, max(r.Size(), query.TopK))
		if err != nil {
			return err
		}
		ranked := Truncate(FilterByMinScore(fromLexical(hits), e.config.MinScoreLexical), query.TopK)
		out, err = e.hydrate(ctx, r, ranked)
		return err
	})
	return out, err
}

func (e *Engine) searchVector(ctx context.Context, query *models.SearchQuery) ([]*models.ScoredDocument, error) {
	qvec, err := e.embedder.EmbedQuery(ctx, query.Query)
	if err != nil {
		return nil, err
	}
	var out []*models.ScoredDocument
	err = e.index.Read(ctx, func(r docindex.Reader) error {
		hits, err := r.Nearest(ctx, qvec, query.TopK)
		if err != nil {
			return err
		}
		ranked := Truncate(FilterByMinScore(fromVector(hits), e.config.MinScoreVector), query.TopK)
		out, err = e.hydrate(ctx, r, ranked)
		return err
	})
	return out, err
}

// searchHybrid embeds the query before taking the index read lock, so a slow
// embedding backend never holds up writers. The lexical and vector queries then run
// concurrently against one snapshot. A failure on either side fails the whole request.
func (e *Engine) searchHybrid(ctx context.Context, query *models.SearchQuery) ([]*models.ScoredDocument, error) {
	qvec, err := e.embedder.EmbedQuery(ctx, query.Query)
	if err != nil {
		return nil, err
	}
	var out []*models.ScoredDocument
	err = e.index.Read(ctx, func(r docindex.Reader) error {
		n := r.Size()
		if n == 0 {
			return nil
		}
		var (
			lexHits []keyword.KeywordResult
			vecHits []vector.VectorResult
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			hits, err := r.Lexical(gctx, query.Query, n)
			if err != nil {
				return err
			}
			lexHits = hits
			return nil
		})
		g.Go(func() error {
			hits, err := r.Nearest(gctx, qvec, n)
			if err != nil {
				return err
			}
			vecHits = hits
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		fused, orphans := Fuse(NormalizeLexicalScores(lexHits), VectorScores(vecHits), e.config.LexicalWeight, e.config.VectorWeight)
		if len(orphans) > 0 {
			e.logger.Error("lexical hits missing from vector index",
				zap.Error(models.ErrDataIntegrity), zap.Int64s("page_ids", orphans))
		}
		ranked := Truncate(FilterByMinScore(fused, e.config.MinScoreHybrid), query.TopK)
		var err error
		out, err = e.hydrate(ctx, r, ranked)
		return err
	})
	return out, err
}

// hydrate attaches stored titles, paths and snippets to ranked results and rounds scores.
func (e *Engine) hydrate(ctx context.Context, r docindex.Reader, ranked []*FusedResult) ([]*models.ScoredDocument, error) {
	out := make([]*models.ScoredDocument, 0, len(ranked))
	if len(ranked) == 0 {
		return out, nil
	}
	ids := make([]int64, len(ranked))
	for i, res := range ranked {
		ids[i] = res.DocumentID
	}
	docs, err := r.Documents(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, res := range ranked {
		doc, ok := docs[res.DocumentID]
		if !ok {
			e.logger.Error("indexed document has no stored record",
				zap.Error(models.ErrDataIntegrity), zap.Int64("page_id", res.DocumentID))
			continue
		}
		out = append(out, &models.ScoredDocument{
			DocumentID:   doc.ID,
			Title:        doc.Title,
			Path:         doc.Path,
			Snippet:      utils.Truncate(doc.ContentPreview, e.config.SnippetLength),
			Score:        utils.RoundScore(res.Score),
			LexicalScore: utils.RoundScore(res.LexicalScore),
			VectorScore:  utils.RoundScore(res.VectorScore),
		})
	}
	return out, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeout > 0 {
		return context.WithTimeout(ctx, e.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// timeoutErr reports an expired search deadline as an upstream failure.
func (e *Engine) timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.Upstream("search timed out", err)
	}
	return err
}
