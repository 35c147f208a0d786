package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
)

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case config.ProviderONNX:
		return NewONNXEmbedder(ONNXConfig{
			ModelPath:  cfg.ONNX.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.ONNX.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewGatewayFromConfig builds the provider, the optional Redis cache and the Gateway around them.
// The returned gateway is not started.
func NewGatewayFromConfig(cfg *config.EmbeddingConfig, logger *zap.Logger) (*Gateway, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := []GatewayOption{
		WithPrefixes(cfg.QueryPrefix, cfg.PassagePrefix),
		WithTimeout(cfg.Timeout),
		WithCache(cfg.CacheSize),
		WithLogger(logger),
	}
	if len(cfg.Redis.Addrs) > 0 {
		rc, err := NewRedisCache(RedisCacheConfig{
			Addrs:     cfg.Redis.Addrs,
			Password:  cfg.Redis.Password,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		opts = append(opts, WithSharedCache(rc))
	}
	return NewGateway(provider, opts...), nil
}
