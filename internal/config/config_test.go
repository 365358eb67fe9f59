package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.Search.MinSimilarity)
	assert.Equal(t, 2, cfg.Search.MinQueryLength)
	assert.Equal(t, 4, cfg.Backfill.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"postgres without url", func(c *Config) { c.Store.Driver = StorePostgres }},
		{"supabase without key", func(c *Config) { c.Store.Driver = StoreSupabase; c.Store.SupabaseURL = "https://x.supabase.co" }},
		{"similarity above one", func(c *Config) { c.Search.MinSimilarity = 1.5 }},
		{"negative similarity", func(c *Config) { c.Search.MinSimilarity = -0.1 }},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 5 }},
		{"zero query length", func(c *Config) { c.Search.MinQueryLength = 0 }},
		{"zero embed timeout", func(c *Config) { c.Search.EmbedTimeout = 0 }},
		{"too many workers", func(c *Config) { c.Backfill.Workers = 9 }},
		{"zero workers", func(c *Config) { c.Backfill.Workers = 0 }},
		{"zero threshold", func(c *Config) { c.Backfill.ProviderDownThreshold = 0 }},
		{"negative interval", func(c *Config) { c.Backfill.Interval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestFromCLI(t *testing.T) {
	var got *Config
	app := &cli.App{
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg, err := FromCLI(c)
			got = cfg
			return err
		},
	}

	t.Setenv("PHARMA_MIN_SIMILARITY", "0.35")
	err := app.Run([]string{"discountsearch", "--backfill-workers", "6", "--cors-origins", "https://a.example, https://b.example"})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 0.35, got.Search.MinSimilarity)
	assert.Equal(t, 6, got.Backfill.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.HTTP.CORSOrigins)
	assert.Equal(t, StoreSQLite, got.Store.Driver)
	assert.Equal(t, DefaultEmbedTimeout, got.Search.EmbedTimeout)
}

func TestFromCLIRejectsInvalid(t *testing.T) {
	app := &cli.App{
		Flags:  Flags(),
		Action: func(c *cli.Context) error { _, err := FromCLI(c); return err },
	}
	err := app.Run([]string{"discountsearch", "--backfill-workers", "20"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
