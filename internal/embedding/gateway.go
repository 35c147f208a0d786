package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/metrics"
	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/pkg/utils"
)

// State is the readiness of the embedding capability.
type State int32

// Readiness states.
const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Gateway is the single entry point for embeddings. It prepends role prefixes,
// refuses work until the provider is warmed up, caches query vectors, bounds
// every call with a timeout and maps provider failures to ErrUpstreamUnavailable.
type Gateway struct {
	provider      Embedder
	queryPrefix   string
	passagePrefix string
	timeout       time.Duration
	cache         *EmbeddingCache
	shared        SharedCache
	logger        *zap.Logger

	state   atomic.Int32
	errMu   sync.RWMutex
	lastErr error
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithPrefixes sets the text prefixes for the query and passage roles.
func WithPrefixes(query, passage string) GatewayOption {
	return func(g *Gateway) {
		g.queryPrefix = query
		g.passagePrefix = passage
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithCache enables an in-process LRU cache of query embeddings.
func WithCache(size int) GatewayOption {
	return func(g *Gateway) {
		if size > 0 {
			g.cache = NewEmbeddingCache(size)
		}
	}
}

// WithSharedCache adds a cross-process cache consulted after the LRU.
func WithSharedCache(c SharedCache) GatewayOption {
	return func(g *Gateway) { g.shared = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway wraps provider. The gateway starts in StateLoading; call Start.
func NewGateway(provider Embedder, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: provider,
		timeout:  10 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state.Store(int32(StateLoading))
	return g
}

// Start warms the provider up with one embedding and moves the gateway to
// StateReady, or to StateFailed when the provider cannot produce a vector of the
// expected dimension.
func (g *Gateway) Start(ctx context.Context) error {
	g.state.Store(int32(StateLoading))
	vec, err := g.call(ctx, RoleQuery, []string{g.queryPrefix + "warmup"})
	if err == nil && len(vec[0]) != g.provider.Dimensions() {
		err = fmt.Errorf("%w: model produced dimension %d, expected %d",
			models.ErrDataIntegrity, len(vec[0]), g.provider.Dimensions())
	}
	if err != nil {
		g.setErr(err)
		g.state.Store(int32(StateFailed))
		g.logger.Error("embedding model failed to load", zap.Error(err))
		return err
	}
	g.setErr(nil)
	g.state.Store(int32(StateReady))
	g.logger.Info("embedding model ready", zap.Int("dimensions", g.provider.Dimensions()))
	return nil
}

// State returns the current readiness.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// Err returns the error that caused StateFailed, if any.
func (g *Gateway) Err() error {
	g.errMu.RLock()
	defer g.errMu.RUnlock()
	return g.lastErr
}

// Dimensions returns the embedding dimension.
func (g *Gateway) Dimensions() int {
	return g.provider.Dimensions()
}

// HealthCheck reports readiness and, when the provider supports it, asks its backend whether it is up.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	if s := g.State(); s != StateReady {
		return fmt.Errorf("%w: embedding model %s", models.ErrUpstreamUnavailable, s)
	}
	if hc, ok := g.provider.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return models.Upstream("embedding", err)
		}
	}
	return nil
}

// EmbedQuery returns the normalized embedding of a search query.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	key := g.queryPrefix + text
	if vec, ok := g.lookup(ctx, key); ok {
		return vec, nil
	}
	out, err := g.call(ctx, RoleQuery, []string{key})
	if err != nil {
		return nil, err
	}
	g.store(ctx, key, out[0])
	return out[0], nil
}

// EmbedPassages returns normalized embeddings for document texts, in input order.
func (g *Gateway) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = g.passagePrefix + t
	}
	return g.call(ctx, RolePassage, prefixed)
}

// Close releases the provider and the shared cache.
func (g *Gateway) Close() error {
	if g.shared != nil {
		g.shared.Close()
	}
	return g.provider.Close()
}

func (g *Gateway) ready() error {
	switch s := g.State(); s {
	case StateReady:
		return nil
	case StateFailed:
		return fmt.Errorf("%w: embedding model failed to load: %v", models.ErrUpstreamUnavailable, g.Err())
	default:
		return fmt.Errorf("%w: embedding model is %s", models.ErrUpstreamUnavailable, s)
	}
}

func (g *Gateway) call(ctx context.Context, role Role, texts []string) ([][]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := g.provider.EmbedBatch(ctx, texts)
	metrics.EmbeddingRequestDuration.WithLabelValues(string(role)).Observe(time.Since(start).Seconds())
	if err == nil && len(out) != len(texts) {
		err = fmt.Errorf("provider returned %d vectors for %d texts", len(out), len(texts))
	}
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(role), "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.Upstream("embedding timed out", err)
		}
		return nil, models.Upstream("embedding", err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(string(role), "success").Inc()
	for _, v := range out {
		utils.NormalizeL2(v)
	}
	return out, nil
}

func (g *Gateway) lookup(ctx context.Context, key string) ([]float32, bool) {
	if g.cache != nil {
		if vec, ok := g.cache.Get(key); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("lru", "hit").Inc()
			return vec, true
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("lru", "miss").Inc()
	}
	if g.shared == nil {
		return nil, false
	}
	vec, err := g.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			g.logger.Warn("shared embedding cache get failed", zap.Error(err))
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("shared", "miss").Inc()
		return nil, false
	}
	if len(vec) != g.provider.Dimensions() {
		g.logger.Warn("shared embedding cache returned wrong dimension", zap.Int("dim", len(vec)))
		return nil, false
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("shared", "hit").Inc()
	if g.cache != nil {
		g.cache.Set(key, vec)
	}
	return vec, true
}

func (g *Gateway) store(ctx context.Context, key string, vec []float32) {
	if g.cache != nil {
		g.cache.Set(key, vec)
	}
	if g.shared != nil {
		if err := g.shared.Set(ctx, key, vec); err != nil {
			g.logger.Warn("shared embedding cache set failed", zap.Error(err))
		}
	}
}

func (g *Gateway) setErr(err error) {
	g.errMu.Lock()
	g.lastErr = err
	g.errMu.Unlock()
}
