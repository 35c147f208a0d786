// Package config provides configuration loading and structs for the knowledge-base search service.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds paths for the record database and the lexical index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// SourceConfig selects where reindex pulls published documents from.
type SourceConfig struct {
	// Type is "wiki", "directory" or "none".
	Type      string          `yaml:"type"`
	Wiki      WikiConfig      `yaml:"wiki"`
	Directory DirectoryConfig `yaml:"directory"`
}

// WikiConfig holds connection settings for the Wiki.js Postgres database.
type WikiConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	SSLMode      string        `yaml:"sslmode"`
	WaitRetries  int           `yaml:"wait_retries"`
	WaitInterval time.Duration `yaml:"wait_interval"`
}

// DSN returns a libpq-style connection string.
func (w WikiConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.Host, w.Port, w.User, w.Password, w.Name, w.SSLMode)
}

// DirectoryConfig holds settings for the file directory source.
type DirectoryConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to walk recursively; defaults to true when unset.
func (d *DirectoryConfig) RecursiveOrDefault() bool {
	if d.Recursive != nil {
		return *d.Recursive
	}
	return true
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "hash", "openai" or "onnx".
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	QueryPrefix   string        `yaml:"query_prefix"`
	PassagePrefix string        `yaml:"passage_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size"`
	OpenAI        OpenAIConfig  `yaml:"openai"`
	ONNX          ONNXConfig    `yaml:"onnx"`
	Redis         RedisConfig   `yaml:"redis"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ONNXConfig configures the local ONNX runtime provider.
type ONNXConfig struct {
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RedisConfig configures the optional shared embedding cache. Empty Addrs disables it.
type RedisConfig struct {
	Addrs     []string      `yaml:"addrs"`
	Password  string        `yaml:"password"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// SearchConfig holds ranking, filtering and presentation settings.
type SearchConfig struct {
	DefaultTopK         int           `yaml:"default_top_k"`
	PreviewLength       int           `yaml:"preview_length"`
	SnippetLength       int           `yaml:"snippet_length"`
	LexicalWeight       float64       `yaml:"lexical_weight"`
	VectorWeight        float64       `yaml:"vector_weight"`
	Language            string        `yaml:"language"`
	MinScoreHybrid      float64       `yaml:"min_score_hybrid"`
	MinScoreVector      float64       `yaml:"min_score_vector"`
	MinScoreLexical     float64       `yaml:"min_score_lexical"`
	DuplicateThreshold  float64       `yaml:"duplicate_threshold"`
	DuplicateExactLimit int           `yaml:"duplicate_exact_limit"`
	SimilarLimit        int           `yaml:"similar_limit"`
	Timeout             time.Duration `yaml:"timeout"`
}

// IndexerConfig holds reindex settings.
type IndexerConfig struct {
	Workers      int  `yaml:"workers"`
	BatchSize    int  `yaml:"batch_size"`
	PruneMissing bool `yaml:"prune_missing"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path. A .env file in the working
// directory is loaded first, ${VAR} references in the file are substituted,
// then defaults and environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	data = expandEnvVars(data)

	cfg := DefaultFor(selectedProvider(data, os.LookupEnv))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ONNX.ModelPath != "" {
		cfg.Embedding.ONNX.ModelPath = expandPath(cfg.Embedding.ONNX.ModelPath, configDir)
	}
	if cfg.Source.Directory.Path != "" {
		cfg.Source.Directory.Path = expandPath(cfg.Source.Directory.Path, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for running
// without a config file.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultFor(selectedProvider(nil, os.LookupEnv))
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions))
	}
	switch c.Embedding.Provider {
	case ProviderHash, ProviderOpenAI, ProviderONNX:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider must be hash, openai or onnx, got %q", c.Embedding.Provider))
	}
	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > 20 {
		errs = append(errs, fmt.Errorf("search.default_top_k must be between 1 and 20, got %d", c.Search.DefaultTopK))
	}
	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
		errs = append(errs, errors.New("search weights must not be negative"))
	}
	for name, v := range map[string]float64{
		"min_score_hybrid":  c.Search.MinScoreHybrid,
		"min_score_vector":  c.Search.MinScoreVector,
		"min_score_lexical": c.Search.MinScoreLexical,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("search.%s must not be negative, got %v", name, v))
		}
	}
	if c.Search.DuplicateThreshold <= 0 || c.Search.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.duplicate_threshold must be in (0, 1], got %v", c.Search.DuplicateThreshold))
	}
	switch c.Source.Type {
	case SourceNone, SourceWiki:
	case SourceDirectory:
		if c.Source.Directory.Path == "" {
			errs = append(errs, errors.New("source.directory.path is required for the directory source"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.type must be wiki, directory or none, got %q", c.Source.Type))
	}
	return errors.Join(errs...)
}

// Write encodes the config as YAML to w.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
