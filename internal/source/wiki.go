package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/extract"
	"github.com/hyperjump/coskb/internal/models"
)

const publishedPagesQuery = `SELECT id, title, path, content FROM pages WHERE "isPublished" = true ORDER BY id`

// WikiSource reads published pages from a Wiki.js Postgres database.
type WikiSource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewWikiSource connects to the wiki database, waiting for it to accept connections
// for up to cfg.WaitRetries attempts.
func NewWikiSource(ctx context.Context, cfg *config.WikiConfig, logger *zap.Logger) (*WikiSource, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse wiki database config: %w", err)
	}
	poolCfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, models.Upstream("wiki database", err)
	}
	if err := waitForDB(ctx, pool.Ping, cfg.WaitRetries, cfg.WaitInterval, logger); err != nil {
		pool.Close()
		return nil, models.Upstream("wiki database", err)
	}
	logger.Info("connected to wiki database", zap.String("host", cfg.Host), zap.String("db", cfg.Name))
	return &WikiSource{pool: pool, logger: logger}, nil
}

// waitForDB calls ping until it succeeds, the attempts run out or ctx ends.
func waitForDB(ctx context.Context, ping func(context.Context) error, retries int, interval time.Duration, logger *zap.Logger) error {
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		logger.Warn("wiki database not ready", zap.Int("attempt", attempt), zap.Int("retries", retries), zap.Error(err))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", retries, err)
}

// pageRow is one row of publishedPagesQuery.
type pageRow struct {
	ID      int64
	Title   string
	Path    string
	Content *string
}

// Documents returns every published page with its markdown reduced to plain text.
func (w *WikiSource) Documents(ctx context.Context) ([]models.SourceDocument, error) {
	rows, err := w.pool.Query(ctx, publishedPagesQuery)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	pages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pageRow])
	if err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}
	docs := make([]models.SourceDocument, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, pageDocument(p))
	}
	w.logger.Debug("loaded published pages", zap.Int("pages", len(docs)))
	return docs, nil
}

// pageDocument converts a pages row. A NULL body becomes empty text.
func pageDocument(p pageRow) models.SourceDocument {
	text := ""
	if p.Content != nil {
		text = extract.StripMarkdown(*p.Content)
	}
	return models.SourceDocument{ID: p.ID, Title: p.Title, Path: p.Path, Text: text}
}

// Ping checks the database connection.
func (w *WikiSource) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close closes the connection pool.
func (w *WikiSource) Close() error {
	w.pool.Close()
	return nil
}
