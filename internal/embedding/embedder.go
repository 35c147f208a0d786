// Package embedding turns text into fixed-dimension vectors. Providers implement
// Embedder; Gateway adds role prefixes, readiness, caching and timeouts on top.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// HealthChecker is implemented by providers that can check their backend cheaply.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Role distinguishes queries from indexed passages; each role gets its own text prefix.
type Role string

// Embedding roles.
const (
	RoleQuery   Role = "query"
	RolePassage Role = "passage"
)
