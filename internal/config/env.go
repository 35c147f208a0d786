package config

import (
	"fmt"
	"strconv"
)

// LookupFunc reports the value of an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings from environment variables that use the
// deployment's established key names (DB_HOST, TOP_K, FTS_WEIGHT, ...).
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	str("DB_HOST", &cfg.Source.Wiki.Host)
	str("DB_USER", &cfg.Source.Wiki.User)
	str("DB_PASS", &cfg.Source.Wiki.Password)
	str("DB_NAME", &cfg.Source.Wiki.Name)
	str("MODEL_NAME", &cfg.Embedding.Model)
	str("FTS_LANGUAGE", &cfg.Search.Language)
	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("OPENAI_API_KEY", &cfg.Embedding.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &cfg.Embedding.OpenAI.BaseURL)

	for _, f := range []func() error{
		func() error { return integer("DB_PORT", &cfg.Source.Wiki.Port) },
		func() error { return integer("EMBEDDING_DIM", &cfg.Embedding.Dimensions) },
		func() error { return integer("TOP_K", &cfg.Search.DefaultTopK) },
		func() error { return integer("SNIPPET_LENGTH", &cfg.Search.PreviewLength) },
		func() error { return float("FTS_WEIGHT", &cfg.Search.LexicalWeight) },
		func() error { return float("VECTOR_WEIGHT", &cfg.Search.VectorWeight) },
		func() error { return float("MIN_SCORE_HYBRID", &cfg.Search.MinScoreHybrid) },
		func() error { return float("MIN_SCORE_VECTOR", &cfg.Search.MinScoreVector) },
		func() error { return float("MIN_SCORE_FTS", &cfg.Search.MinScoreLexical) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}
