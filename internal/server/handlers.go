package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/models"
)

// maxIndexBody bounds the JSON body accepted by POST /index.
const maxIndexBody = 64 << 20

// indexRequest is the optional body of POST /index.
type indexRequest struct {
	Documents []models.SourceDocument `json:"documents"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string           `json:"error"`
	Kind  models.ErrorKind `json:"kind"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: invalid request body", models.ErrInvalidQuery))
			return
		}
	} else {
		params := r.URL.Query()
		query.Query = params.Get("q")
		query.Mode = models.SearchMode(params.Get("mode"))
		if raw := params.Get("top_k"); raw != "" {
			k, err := strconv.Atoi(raw)
			if err != nil {
				s.respondError(w, r, fmt.Errorf("%w: top_k must be an integer, got %q", models.ErrInvalidQuery, raw))
				return
			}
			query.TopK = k
		}
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK), zap.String("mode", string(query.Mode)))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("page_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: page_id must be an integer, got %q", models.ErrInvalidQuery, raw))
		return
	}
	response, err := s.engine.Similar(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	threshold := s.config.Search.DuplicateThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: threshold must be a number, got %q", models.ErrInvalidThreshold, raw))
			return
		}
		threshold = t
	}
	response, err := s.engine.FindDuplicates(r.Context(), threshold)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handleIndex reindexes the documents in the request body, or pulls the whole
// corpus from the configured source when the body is empty.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIndexBody))
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: models.KindInvalidQuery})
		return
	}

	var result *models.ReindexResult
	if len(strings.TrimSpace(string(body))) > 0 {
		var req indexRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: models.KindInvalidQuery})
			return
		}
		s.logger.Debug("index request", zap.Int("documents", len(req.Documents)))
		result, err = s.indexer.Reindex(r.Context(), req.Documents)
	} else {
		if s.source == nil {
			s.respondJSON(w, http.StatusNotImplemented, errorResponse{Error: "no document source configured", Kind: models.KindInternal})
			return
		}
		s.logger.Debug("index request from source")
		result, err = s.indexer.ReindexSource(r.Context(), s.source)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.index.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, report)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidQuery, models.KindInvalidThreshold, models.KindUnsupportedMode:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.Kind(err)
	status := statusFor(kind)
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("kind", string(kind)), zap.Error(err))
	default:
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
