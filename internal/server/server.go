// Package server provides the HTTP API for the knowledge-base search service.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/docindex"
	"github.com/hyperjump/coskb/internal/health"
	"github.com/hyperjump/coskb/internal/indexer"
	"github.com/hyperjump/coskb/internal/metrics"
	"github.com/hyperjump/coskb/internal/search"
)

// Server is the HTTP server for the search API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	index   *docindex.DocumentIndex
	health  *health.Checker
	source  indexer.Source
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. src may be nil, in
// which case POST /index only accepts documents in the request body.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	index *docindex.DocumentIndex,
	checker *health.Checker,
	src indexer.Source,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  engine,
		indexer: idx,
		index:   index,
		health:  checker,
		source:  src,
		config:  cfg,
		logger:  logger,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if t := s.config.Server.RequestTimeout; t > 0 {
			r.Use(middleware.Timeout(t))
		}
		r.Get("/search", s.handleSearch)
		r.Post("/search", s.handleSearch)
		r.Get("/similar", s.handleSimilar)
		r.Get("/duplicates", s.handleDuplicates)
		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
	})

	// Reindex runs as long as it needs; the client decides when to give up.
	r.Post("/index", s.handleIndex)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
