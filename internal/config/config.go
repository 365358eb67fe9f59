// Package config holds the service configuration.
//
// Every setting is a command-line flag that can also be supplied through an
// environment variable, so the same binary runs from a shell or a container.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Defaults
const (
	DefaultSQLitePath       = "pharma.db"
	DefaultQdrantCollection = "programs"
	DefaultCacheSize        = 10000
	DefaultCacheTTL         = 24 * time.Hour

	DefaultMinSimilarity  = 0.2
	DefaultLimit          = 10
	DefaultMaxLimit       = 100
	DefaultMinQueryLength = 2
	DefaultEmbedTimeout   = 5 * time.Second
	DefaultStoreTimeout   = 10 * time.Second

	DefaultBackfillWorkers       = 4
	MaxBackfillWorkers           = 8
	DefaultItemTimeout           = 30 * time.Second
	DefaultProviderDownThreshold = 3

	DefaultHTTPAddr = ":8080"
	DefaultLogMode  = "dev"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete service configuration
type Config struct {
	Store     StoreConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Backfill  BackfillConfig
	HTTP      HTTPConfig
	LogMode   string
}

// StoreConfig selects and connects the record store
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	SupabaseURL string
	SupabaseKey string

	// Optional Qdrant mirror for similarity search
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
}

// EmbeddingConfig selects the embedding provider and its caches
type EmbeddingConfig struct {
	Provider     string // jina, openai, ollama, local; empty auto-detects
	Model        string
	Host         string // base URL for OpenAI-compatible servers
	OpenAIAPIKey string
	JinaAPIKey   string
	CacheSize    int
	RedisURL     string
	CacheTTL     time.Duration
}

// SearchConfig tunes the query path
type SearchConfig struct {
	MinSimilarity  float64
	DefaultLimit   int
	MaxLimit       int
	MinQueryLength int
	EmbedTimeout   time.Duration
	StoreTimeout   time.Duration
}

// BackfillConfig tunes the embedding backfill job
type BackfillConfig struct {
	Workers               int
	ItemTimeout           time.Duration
	ProviderDownThreshold int
	Interval              time.Duration // 0 disables the scheduler
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:           StoreSQLite,
			SQLitePath:       DefaultSQLitePath,
			QdrantCollection: DefaultQdrantCollection,
		},
		Embedding: EmbeddingConfig{
			CacheSize: DefaultCacheSize,
			CacheTTL:  DefaultCacheTTL,
		},
		Search: SearchConfig{
			MinSimilarity:  DefaultMinSimilarity,
			DefaultLimit:   DefaultLimit,
			MaxLimit:       DefaultMaxLimit,
			MinQueryLength: DefaultMinQueryLength,
			EmbedTimeout:   DefaultEmbedTimeout,
			StoreTimeout:   DefaultStoreTimeout,
		},
		Backfill: BackfillConfig{
			Workers:               DefaultBackfillWorkers,
			ItemTimeout:           DefaultItemTimeout,
			ProviderDownThreshold: DefaultProviderDownThreshold,
		},
		HTTP: HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
		LogMode: DefaultLogMode,
	}
}

// Validate checks that all settings are usable
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("%w: database url is required for the postgres store", ErrInvalidConfig)
		}
	case StoreSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return fmt.Errorf("%w: supabase url and key are required for the supabase store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Store.QdrantURL != "" && c.Store.QdrantCollection == "" {
		return fmt.Errorf("%w: qdrant collection is required", ErrInvalidConfig)
	}

	s := c.Search
	if s.MinSimilarity < 0 || s.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity must be between 0 and 1, got %v", ErrInvalidConfig, s.MinSimilarity)
	}
	if s.DefaultLimit < 1 || s.MaxLimit < s.DefaultLimit {
		return fmt.Errorf("%w: limits must satisfy 1 <= default (%d) <= max (%d)", ErrInvalidConfig, s.DefaultLimit, s.MaxLimit)
	}
	if s.MinQueryLength < 1 {
		return fmt.Errorf("%w: min query length must be positive", ErrInvalidConfig)
	}
	if s.EmbedTimeout <= 0 || s.StoreTimeout <= 0 {
		return fmt.Errorf("%w: search timeouts must be positive", ErrInvalidConfig)
	}

	b := c.Backfill
	if b.Workers < 1 || b.Workers > MaxBackfillWorkers {
		return fmt.Errorf("%w: backfill workers must be between 1 and %d, got %d", ErrInvalidConfig, MaxBackfillWorkers, b.Workers)
	}
	if b.ItemTimeout <= 0 {
		return fmt.Errorf("%w: backfill item timeout must be positive", ErrInvalidConfig)
	}
	if b.ProviderDownThreshold < 1 {
		return fmt.Errorf("%w: provider down threshold must be positive", ErrInvalidConfig)
	}
	if b.Interval < 0 {
		return fmt.Errorf("%w: backfill interval cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// splitList parses a comma separated list, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
