// Package source provides the document sources a reindex pulls published
// documents from: a Wiki.js Postgres database or a directory of files.
package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/extract"
	"github.com/hyperjump/coskb/internal/models"
)

// ErrNoSource is returned by New when no document source is configured.
var ErrNoSource = errors.New("no document source configured")

// Source lists published documents.
type Source interface {
	Documents(ctx context.Context) ([]models.SourceDocument, error)
	Close() error
}

// New opens the source selected by cfg.Type.
func New(ctx context.Context, cfg *config.SourceConfig, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case config.SourceWiki:
		return NewWikiSource(ctx, &cfg.Wiki, logger)
	case config.SourceDirectory:
		return NewDirectorySource(&cfg.Directory, extract.NewExtractor(), logger)
	case config.SourceNone, "":
		return nil, ErrNoSource
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
