// Package health reports liveness of the index storage and the embedding model.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/embedding"
)

// Status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Report is the health response.
type Report struct {
	Status          string `json:"status"`
	ModelLoaded     bool   `json:"model_loaded"`
	ModelReachable  bool   `json:"model_reachable"`
	ModelState      string `json:"model_state"`
	ModelError      string `json:"model_error,omitempty"`
	DBConnected     bool   `json:"db_connected"`
	DBError         string `json:"db_error,omitempty"`
	IndexConsistent bool   `json:"index_consistent"`
	IndexError      string `json:"index_error,omitempty"`
	Documents       int    `json:"documents"`
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return r.Status == StatusOK
}

// Model is the readiness view of the embedding gateway. HealthCheck reaches the
// embedding backend itself, so a remote server that went away after startup shows up.
type Model interface {
	State() embedding.State
	Err() error
	HealthCheck(ctx context.Context) error
}

// Index is the part of the document index the checker inspects.
type Index interface {
	Ping(ctx context.Context) error
	Verify(ctx context.Context) error
	Size() int
}

// Checker runs the health checks.
type Checker struct {
	index   Index
	model   Model
	timeout time.Duration
	logger  *zap.Logger
}

// NewChecker creates a checker. Each check is bounded by timeout.
func NewChecker(index Index, model Model, timeout time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{index: index, model: model, timeout: timeout, logger: logger}
}

// Check tests storage, index consistency, model readiness and, once the model is
// ready, that its backend still answers. It never fails;
// problems show up as a degraded report.
func (c *Checker) Check(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r := &Report{Status: StatusOK}

	state := c.model.State()
	r.ModelState = state.String()
	r.ModelLoaded = state == embedding.StateReady
	if err := c.model.Err(); err != nil {
		r.ModelError = err.Error()
	}
	if r.ModelLoaded {
		if err := c.model.HealthCheck(ctx); err != nil {
			r.ModelError = err.Error()
			c.logger.Warn("health: embedding backend unreachable", zap.Error(err))
		} else {
			r.ModelReachable = true
		}
	}

	if err := c.index.Ping(ctx); err != nil {
		r.DBError = err.Error()
		c.logger.Warn("health: index storage unreachable", zap.Error(err))
	} else {
		r.DBConnected = true
		if err := c.index.Verify(ctx); err != nil {
			r.IndexError = err.Error()
			c.logger.Error("health: index integrity check failed", zap.Error(err))
		} else {
			r.IndexConsistent = true
		}
	}
	r.Documents = c.index.Size()

	if !r.ModelReachable || !r.DBConnected || !r.IndexConsistent {
		r.Status = StatusDegraded
	}
	return r
}
