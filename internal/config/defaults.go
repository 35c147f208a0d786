package config

import (
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
)

// Document source types.
const (
	SourceNone      = "none"
	SourceWiki      = "wiki"
	SourceDirectory = "directory"
)

// MinScores are the per-mode result floors.
type MinScores struct {
	Hybrid  float64
	Vector  float64
	Lexical float64
}

// DefaultMinScores returns the result floors calibrated for an embedding provider.
// The e5 models served by the onnx and openai providers put related passages above
// 0.8 cosine. The hash provider's bag-of-words vectors rarely share more than a few
// words with a short query, so its floors sit far lower.
func DefaultMinScores(provider string) MinScores {
	if provider == ProviderHash {
		return MinScores{Hybrid: 0.30, Vector: 0.10, Lexical: 0.05}
	}
	return MinScores{Hybrid: 0.55, Vector: 0.80, Lexical: 0.05}
}

// Default returns a configuration with every setting at its default, using the
// hash embedding provider.
func Default() *Config {
	return DefaultFor(ProviderHash)
}

// DefaultFor returns the defaults for the given embedding provider. Load decodes
// the YAML file on top of it so explicit zero values in the file are kept.
func DefaultFor(provider string) *Config {
	floors := DefaultMinScores(provider)
	cfg := &Config{
		Embedding: EmbeddingConfig{Provider: provider},
		Search: SearchConfig{
			LexicalWeight:   0.4,
			VectorWeight:    0.6,
			MinScoreHybrid:  floors.Hybrid,
			MinScoreVector:  floors.Vector,
			MinScoreLexical: floors.Lexical,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// selectedProvider reports the embedding provider a configuration will end up
// with: the EMBEDDING_PROVIDER variable, else the file's embedding.provider, else hash.
// A malformed file yields hash here and fails in the full decode.
func selectedProvider(data []byte, lookup LookupFunc) string {
	if v, ok := lookup("EMBEDDING_PROVIDER"); ok && v != "" {
		return v
	}
	var peek struct {
		Embedding struct {
			Provider string `yaml:"provider"`
		} `yaml:"embedding"`
	}
	if err := yaml.Unmarshal(data, &peek); err == nil && peek.Embedding.Provider != "" {
		return peek.Embedding.Provider
	}
	return ProviderHash
}

// ApplyDefaults sets default values for any zero values in cfg. Weights and
// minimum scores are only defaulted through Default, since zero is meaningful for them,
// except that two zero weights fall back to 0.4/0.6.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/coskb.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/bleve"
	}

	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceNone
	}
	w := &cfg.Source.Wiki
	if w.Host == "" {
		w.Host = "localhost"
	}
	if w.Port == 0 {
		w.Port = 5432
	}
	if w.User == "" {
		w.User = "wikijs"
	}
	if w.Name == "" {
		w.Name = "wiki"
	}
	if w.SSLMode == "" {
		w.SSLMode = "disable"
	}
	if w.WaitRetries == 0 {
		w.WaitRetries = 30
	}
	if w.WaitInterval == 0 {
		w.WaitInterval = 2 * time.Second
	}
	if cfg.Source.Directory.Extensions == nil {
		cfg.Source.Directory.Extensions = []string{".txt", ".md", ".pdf", ".xlsx"}
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderHash
	}
	if e.Model == "" {
		e.Model = "intfloat/multilingual-e5-small"
	}
	if e.Dimensions == 0 {
		e.Dimensions = 384
	}
	if e.QueryPrefix == "" {
		e.QueryPrefix = "query: "
	}
	if e.PassagePrefix == "" {
		e.PassagePrefix = "passage: "
	}
	if e.Timeout == 0 {
		e.Timeout = 10 * time.Second
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.ONNX.MaxTokens == 0 {
		e.ONNX.MaxTokens = 512
	}
	if e.Redis.KeyPrefix == "" {
		e.Redis.KeyPrefix = "coskb:emb:"
	}
	if e.Redis.TTL == 0 {
		e.Redis.TTL = 24 * time.Hour
	}

	s := &cfg.Search
	if s.DefaultTopK == 0 {
		s.DefaultTopK = 5
	}
	if s.PreviewLength == 0 {
		s.PreviewLength = 300
	}
	if s.SnippetLength == 0 {
		s.SnippetLength = 200
	}
	if s.LexicalWeight == 0 && s.VectorWeight == 0 {
		s.LexicalWeight = 0.4
		s.VectorWeight = 0.6
	}
	if s.Language == "" {
		s.Language = "simple"
	}
	if s.DuplicateThreshold == 0 {
		s.DuplicateThreshold = 0.9
	}
	if s.DuplicateExactLimit == 0 {
		s.DuplicateExactLimit = 5000
	}
	if s.SimilarLimit == 0 {
		s.SimilarLimit = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Second
	}

	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = max(1, runtime.NumCPU()/2)
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 32
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
