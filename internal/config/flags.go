package config

import (
	"github.com/urfave/cli/v2"
)

// Flag names
const (
	FlagStore            = "store"
	FlagSQLitePath       = "db"
	FlagDatabaseURL      = "database-url"
	FlagSupabaseURL      = "supabase-url"
	FlagSupabaseKey      = "supabase-key"
	FlagQdrantURL        = "qdrant-url"
	FlagQdrantAPIKey     = "qdrant-api-key"
	FlagQdrantCollection = "qdrant-collection"

	FlagEmbeddingProvider = "embedding-provider"
	FlagEmbeddingModel    = "embedding-model"
	FlagEmbeddingHost     = "embedding-host"
	FlagOpenAIAPIKey      = "openai-api-key"
	FlagJinaAPIKey        = "jina-api-key"
	FlagCacheSize         = "embedding-cache-size"
	FlagRedisURL          = "redis-url"
	FlagCacheTTL          = "embedding-cache-ttl"

	FlagMinSimilarity  = "min-similarity"
	FlagDefaultLimit   = "default-limit"
	FlagMaxLimit       = "max-limit"
	FlagMinQueryLength = "min-query-length"
	FlagEmbedTimeout   = "embed-timeout"
	FlagStoreTimeout   = "store-timeout"

	FlagWorkers               = "backfill-workers"
	FlagItemTimeout           = "backfill-item-timeout"
	FlagProviderDownThreshold = "backfill-provider-down-threshold"
	FlagBackfillInterval      = "backfill-interval"

	FlagHTTPAddr    = "http-addr"
	FlagCORSOrigins = "cors-origins"
	FlagLogMode     = "log-mode"
)

// Flags returns the global flags for every configuration setting
func Flags() []cli.Flag {
	d := Default()
	return []cli.Flag{
		// Store
		&cli.StringFlag{Name: FlagStore, Usage: "Record store driver (sqlite, postgres, supabase)", Value: d.Store.Driver, EnvVars: []string{"PHARMA_STORE"}},
		&cli.StringFlag{Name: FlagSQLitePath, Usage: "SQLite database path", Value: d.Store.SQLitePath, EnvVars: []string{"PHARMA_DB_PATH"}},
		&cli.StringFlag{Name: FlagDatabaseURL, Usage: "PostgreSQL connection URL", EnvVars: []string{"DATABASE_URL"}},
		&cli.StringFlag{Name: FlagSupabaseURL, Usage: "Supabase project URL", EnvVars: []string{"SUPABASE_URL"}},
		&cli.StringFlag{Name: FlagSupabaseKey, Usage: "Supabase service key", EnvVars: []string{"SUPABASE_KEY", "SUPABASE_SERVICE_ROLE_KEY"}},
		&cli.StringFlag{Name: FlagQdrantURL, Usage: "Qdrant URL; enables the Qdrant similarity mirror", EnvVars: []string{"QDRANT_URL"}},
		&cli.StringFlag{Name: FlagQdrantAPIKey, Usage: "Qdrant API key", EnvVars: []string{"QDRANT_API_KEY"}},
		&cli.StringFlag{Name: FlagQdrantCollection, Usage: "Qdrant collection name", Value: d.Store.QdrantCollection, EnvVars: []string{"QDRANT_COLLECTION"}},

		// Embedding
		&cli.StringFlag{Name: FlagEmbeddingProvider, Usage: "Embedding provider (jina, openai, ollama, local); auto-detected when empty", EnvVars: []string{"PHARMA_EMBEDDING_PROVIDER"}},
		&cli.StringFlag{Name: FlagEmbeddingModel, Usage: "Embedding model name (provider default when empty)", EnvVars: []string{"PHARMA_EMBEDDING_MODEL"}},
		&cli.StringFlag{Name: FlagEmbeddingHost, Usage: "Base URL of an OpenAI-compatible embedding server", Value: "http://localhost:11434/v1", EnvVars: []string{"PHARMA_EMBEDDING_HOST"}},
		&cli.StringFlag{Name: FlagOpenAIAPIKey, Usage: "OpenAI API key", EnvVars: []string{"OPENAI_API_KEY"}},
		&cli.StringFlag{Name: FlagJinaAPIKey, Usage: "Jina AI API key", EnvVars: []string{"JINA_API_KEY"}},
		&cli.IntFlag{Name: FlagCacheSize, Usage: "In-process embedding cache entries", Value: d.Embedding.CacheSize, EnvVars: []string{"PHARMA_EMBEDDING_CACHE_SIZE"}},
		&cli.StringFlag{Name: FlagRedisURL, Usage: "Redis URL for a shared embedding cache", EnvVars: []string{"REDIS_URL"}},
		&cli.DurationFlag{Name: FlagCacheTTL, Usage: "Shared embedding cache TTL", Value: d.Embedding.CacheTTL, EnvVars: []string{"PHARMA_EMBEDDING_CACHE_TTL"}},

		// Search
		&cli.Float64Flag{Name: FlagMinSimilarity, Usage: "Minimum cosine similarity for semantic results", Value: d.Search.MinSimilarity, EnvVars: []string{"PHARMA_MIN_SIMILARITY"}},
		&cli.IntFlag{Name: FlagDefaultLimit, Usage: "Result limit when none is requested", Value: d.Search.DefaultLimit, EnvVars: []string{"PHARMA_DEFAULT_LIMIT"}},
		&cli.IntFlag{Name: FlagMaxLimit, Usage: "Upper bound on requested result limits", Value: d.Search.MaxLimit, EnvVars: []string{"PHARMA_MAX_LIMIT"}},
		&cli.IntFlag{Name: FlagMinQueryLength, Usage: "Queries shorter than this return no results", Value: d.Search.MinQueryLength, EnvVars: []string{"PHARMA_MIN_QUERY_LENGTH"}},
		&cli.DurationFlag{Name: FlagEmbedTimeout, Usage: "Timeout for the query embedding call", Value: d.Search.EmbedTimeout, EnvVars: []string{"PHARMA_EMBED_TIMEOUT"}},
		&cli.DurationFlag{Name: FlagStoreTimeout, Usage: "Timeout for each store round-trip", Value: d.Search.StoreTimeout, EnvVars: []string{"PHARMA_STORE_TIMEOUT"}},

		// Backfill
		&cli.IntFlag{Name: FlagWorkers, Usage: "Concurrent embedding calls during backfill (1-8)", Value: d.Backfill.Workers, EnvVars: []string{"PHARMA_BACKFILL_WORKERS"}},
		&cli.DurationFlag{Name: FlagItemTimeout, Usage: "Timeout for embedding and persisting one program", Value: d.Backfill.ItemTimeout, EnvVars: []string{"PHARMA_BACKFILL_ITEM_TIMEOUT"}},
		&cli.IntFlag{Name: FlagProviderDownThreshold, Usage: "Consecutive provider failures that end a backfill run", Value: d.Backfill.ProviderDownThreshold, EnvVars: []string{"PHARMA_BACKFILL_PROVIDER_DOWN_THRESHOLD"}},
		&cli.DurationFlag{Name: FlagBackfillInterval, Usage: "Run the backfill periodically while serving (0 disables)", EnvVars: []string{"PHARMA_BACKFILL_INTERVAL"}},

		// HTTP and logging
		&cli.StringFlag{Name: FlagHTTPAddr, Usage: "HTTP listen address", Value: d.HTTP.Addr, EnvVars: []string{"PHARMA_HTTP_ADDR"}},
		&cli.StringFlag{Name: FlagCORSOrigins, Usage: "Comma separated CORS origins (empty allows all)", EnvVars: []string{"PHARMA_CORS_ORIGINS"}},
		&cli.StringFlag{Name: FlagLogMode, Usage: "Log mode (dev, production)", Value: d.LogMode, EnvVars: []string{"PHARMA_LOG_MODE"}},
	}
}

// FromCLI builds and validates a configuration from parsed flags
func FromCLI(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Store: StoreConfig{
			Driver:           c.String(FlagStore),
			SQLitePath:       c.String(FlagSQLitePath),
			DatabaseURL:      c.String(FlagDatabaseURL),
			SupabaseURL:      c.String(FlagSupabaseURL),
			SupabaseKey:      c.String(FlagSupabaseKey),
			QdrantURL:        c.String(FlagQdrantURL),
			QdrantAPIKey:     c.String(FlagQdrantAPIKey),
			QdrantCollection: c.String(FlagQdrantCollection),
		},
		Embedding: EmbeddingConfig{
			Provider:     c.String(FlagEmbeddingProvider),
			Model:        c.String(FlagEmbeddingModel),
			Host:         c.String(FlagEmbeddingHost),
			OpenAIAPIKey: c.String(FlagOpenAIAPIKey),
			JinaAPIKey:   c.String(FlagJinaAPIKey),
			CacheSize:    c.Int(FlagCacheSize),
			RedisURL:     c.String(FlagRedisURL),
			CacheTTL:     c.Duration(FlagCacheTTL),
		},
		Search: SearchConfig{
			MinSimilarity:  c.Float64(FlagMinSimilarity),
			DefaultLimit:   c.Int(FlagDefaultLimit),
			MaxLimit:       c.Int(FlagMaxLimit),
			MinQueryLength: c.Int(FlagMinQueryLength),
			EmbedTimeout:   c.Duration(FlagEmbedTimeout),
			StoreTimeout:   c.Duration(FlagStoreTimeout),
		},
		Backfill: BackfillConfig{
			Workers:               c.Int(FlagWorkers),
			ItemTimeout:           c.Duration(FlagItemTimeout),
			ProviderDownThreshold: c.Int(FlagProviderDownThreshold),
			Interval:              c.Duration(FlagBackfillInterval),
		},
		HTTP: HTTPConfig{
			Addr:        c.String(FlagHTTPAddr),
			CORSOrigins: splitList(c.String(FlagCORSOrigins)),
		},
		LogMode: c.String(FlagLogMode),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
