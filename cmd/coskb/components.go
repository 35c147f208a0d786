package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/embedding"
	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/indexer"
	"github.com/hyperjump/coskb/internal/keyword"
	"github.com/hyperjump/coskb/internal/metrics"
	"github.com/hyperjump/coskb/internal/search"
	"github.com/hyperjump/coskb/internal/source"
	"github.com/hyperjump/coskb/internal/storage"
	"github.com/hyperjump/coskb/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config  *config.Config
	Index   *docindex.DocumentIndex
	Gateway *embedding.Gateway
	Engine  *search.Engine
	Indexer *indexer.Indexer
	Source  source.Source
	Health  *health.Checker
}

type componentOptions struct {
	// source opens the configured document source.
	source bool
	// asyncModel warms the embedding model up in the background instead of
	// waiting for it; the gateway reports Loading until it is done.
	asyncModel bool
	// modelOptional keeps going when the model fails to load; the gateway
	// reports Failed.
	modelOptional bool
}

// indexSource returns the source as an indexer.Source, nil when none is configured.
func (c *Components) indexSource() indexer.Source {
	if c.Source == nil {
		return nil
	}
	return c.Source
}

func (c *Components) Close() {
	if c.Indexer != nil {
		c.Indexer.Release()
	}
	if c.Source != nil {
		_ = c.Source.Close()
	}
	if c.Gateway != nil {
		_ = c.Gateway.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *Components, err error) {
	metrics.Register()

	c := &Components{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	vectors, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0755); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create lexical index directory: %w", err)
	}
	lexical, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, cfg.Search.Language)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}
	c.Index, err = docindex.Open(ctx, store, vectors, lexical,
		docindex.WithLogger(logger),
		docindex.WithLexicalPath(cfg.Storage.BleveIndexPath),
	)
	if err != nil {
		_ = lexical.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to open document index: %w", err)
	}
	metrics.IndexedDocuments.Set(float64(c.Index.Size()))
	logger.Info("document index opened", zap.Int("documents", c.Index.Size()))

	c.Gateway, err = embedding.NewGatewayFromConfig(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding: %w", err)
	}
	if opts.asyncModel {
		go func() { _ = c.Gateway.Start(context.WithoutCancel(ctx)) }()
	} else if err := c.Gateway.Start(ctx); err != nil && !opts.modelOptional {
		return nil, fmt.Errorf("embedding model: %w", err)
	}

	c.Engine = search.NewEngine(c.Index, c.Gateway, &cfg.Search, search.WithLogger(logger))
	c.Indexer, err = indexer.NewIndexer(c.Index, c.Gateway, &cfg.Indexer,
		indexer.WithLogger(logger),
		indexer.WithPreviewLength(cfg.Search.PreviewLength),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	c.Health = health.NewChecker(c.Index, c.Gateway, cfg.Embedding.Timeout, logger)

	if opts.source {
		c.Source, err = source.New(ctx, &cfg.Source, logger)
		switch {
		case errors.Is(err, source.ErrNoSource):
			logger.Info("no document source configured; reindex accepts documents only")
			err = nil
		case err != nil:
			return nil, fmt.Errorf("failed to open document source: %w", err)
		}
	}
	return c, nil
}
