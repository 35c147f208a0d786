package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/coskb/internal/models"
)

// recordingEmbedder returns [len(text), 1] for every input and remembers what it saw.
type recordingEmbedder struct {
	mu    sync.Mutex
	seen  []string
	calls int
	dims  int
	err   error
	delay time.Duration
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.calls++
	r.seen = append(r.seen, texts...)
	err, delay := r.err, r.delay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, r.dims)
		v[0] = float32(len(t))
		if r.dims > 1 {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (r *recordingEmbedder) Dimensions() int { return r.dims }
func (r *recordingEmbedder) Close() error    { return nil }

func (r *recordingEmbedder) seenTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string][]float32
}

func (c *mapCache) Get(_ context.Context, key string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = vec
	return nil
}

func (c *mapCache) Close() {}

func startedGateway(t *testing.T, p Embedder, opts ...GatewayOption) *Gateway {
	t.Helper()
	g := NewGateway(p, opts...)
	require.NoError(t, g.Start(context.Background()))
	return g
}

func TestGateway_NotReadyBeforeStart(t *testing.T) {
	g := NewGateway(&recordingEmbedder{dims: 2})
	assert.Equal(t, StateLoading, g.State())
	_, err := g.EmbedQuery(context.Background(), "vpn")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	_, err = g.EmbedPassages(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestGateway_StartFailure(t *testing.T) {
	p := &recordingEmbedder{dims: 2, err: errors.New("model file missing")}
	g := NewGateway(p)
	err := g.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, g.State())
	assert.Equal(t, "failed", g.State().String())
	assert.Error(t, g.Err())

	_, err = g.EmbedQuery(context.Background(), "vpn")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "model file missing")
}

func TestGateway_RolePrefixes(t *testing.T) {
	p := &recordingEmbedder{dims: 2}
	g := startedGateway(t, p, WithPrefixes("query: ", "passage: "))

	_, err := g.EmbedQuery(context.Background(), "vpn")
	require.NoError(t, err)
	_, err = g.EmbedPassages(context.Background(), []string{"Настройка VPN\nКак подключиться"})
	require.NoError(t, err)

	seen := p.seenTexts()
	assert.Equal(t, "query: vpn", seen[len(seen)-2])
	assert.Equal(t, "passage: Настройка VPN\nКак подключиться", seen[len(seen)-1])
}

func TestGateway_NormalizesVectors(t *testing.T) {
	g := startedGateway(t, &recordingEmbedder{dims: 2})
	v, err := g.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(v[0]*v[0]+v[1]*v[1]), 1e-6)
}

func TestGateway_QueryCache(t *testing.T) {
	p := &recordingEmbedder{dims: 2}
	shared := &mapCache{m: map[string][]float32{}}
	g := startedGateway(t, p, WithCache(10), WithSharedCache(shared))
	before := p.calls

	_, err := g.EmbedQuery(context.Background(), "vpn")
	require.NoError(t, err)
	_, err = g.EmbedQuery(context.Background(), "vpn")
	require.NoError(t, err)
	assert.Equal(t, before+1, p.calls, "second query should be served from cache")
	assert.Len(t, shared.m, 1)

	// a fresh gateway sharing the cache skips the provider
	p2 := &recordingEmbedder{dims: 2}
	g2 := startedGateway(t, p2, WithCache(10), WithSharedCache(shared))
	before2 := p2.calls
	_, err = g2.EmbedQuery(context.Background(), "vpn")
	require.NoError(t, err)
	assert.Equal(t, before2, p2.calls)
}

func TestGateway_Timeout(t *testing.T) {
	p := &recordingEmbedder{dims: 2}
	g := startedGateway(t, p, WithTimeout(20*time.Millisecond))
	p.mu.Lock()
	p.delay = time.Second
	p.mu.Unlock()

	start := time.Now()
	_, err := g.EmbedQuery(context.Background(), "slow")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGateway_ProviderErrorIsUpstream(t *testing.T) {
	p := &recordingEmbedder{dims: 2}
	g := startedGateway(t, p)
	p.mu.Lock()
	p.err = errors.New("connection refused")
	p.mu.Unlock()
	_, err := g.EmbedPassages(context.Background(), []string{"a"})
	assert.Equal(t, models.KindUpstreamUnavailable, models.Kind(err))
}

func TestGateway_DimensionMismatchFailsStart(t *testing.T) {
	g := NewGateway(&wrongDims{recordingEmbedder{dims: 2}})
	err := g.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrDataIntegrity)
	assert.Equal(t, StateFailed, g.State())
}

type wrongDims struct{ recordingEmbedder }

func (w *wrongDims) Dimensions() int { return 3 }
