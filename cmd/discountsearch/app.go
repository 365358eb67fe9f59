package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/backfill"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/embedder"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/search"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage/postgres"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage/qdrant"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage/supabase"
)

// services holds everything a command needs. The embedder and store are
// shared by the router and the backfill job.
type services struct {
	cfg      *config.Config
	log      *logger.Logger
	store    storage.Store
	writer   storage.ProgramWriter // nil when the store does not accept upserts
	embedder embedder.Embedder
	router   *search.Router
	job      *backfill.Job
}

// setup loads the configuration and connects every dependency
func setup(ctx context.Context, c *cli.Context) (*services, error) {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, writer, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	emb, err := embedder.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		_ = store.Close()
		log.Sync()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	log.Info("embedder ready", "provider", emb.Provider(), "model", emb.Model())

	return &services{
		cfg:      cfg,
		log:      log,
		store:    store,
		writer:   writer,
		embedder: emb,
		router: search.NewRouter(store, emb,
			search.WithConfig(cfg.Search),
			search.WithLogger(log.With("component", "router"))),
		job: backfill.NewJob(store, emb,
			backfill.WithConfig(cfg.Backfill),
			backfill.WithLogger(log.With("component", "backfill"))),
	}, nil
}

func (s *services) scheduler() *backfill.Scheduler {
	return backfill.NewScheduler(s.job, s.cfg.Backfill.Interval, s.log.With("component", "scheduler"))
}

func (s *services) Close() error {
	err := errors.Join(s.embedder.Close(), s.store.Close())
	s.log.Sync()
	return err
}

// openStore connects the configured record store and wraps it with the Qdrant
// mirror when a Qdrant URL is set
func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (storage.Store, storage.ProgramWriter, error) {
	var (
		base   storage.Store
		writer storage.ProgramWriter
	)

	switch cfg.Driver {
	case config.StoreSQLite:
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		base, writer = s, s
		log.Info("record store opened", "driver", cfg.Driver, "path", cfg.SQLitePath, "sqlite_driver", storage.DriverName)
	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		base, writer = s, s
		log.Info("record store opened", "driver", cfg.Driver)
	case config.StoreSupabase:
		s, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		base = s
		log.Info("record store opened", "driver", cfg.Driver, "url", cfg.SupabaseURL)
	default:
		return nil, nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Driver)
	}

	if cfg.QdrantURL == "" {
		return base, writer, nil
	}

	mirrored, err := qdrant.New(base, qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err != nil {
		_ = base.Close()
		return nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	log.Info("qdrant similarity mirror enabled", "collection", cfg.QdrantCollection)
	return mirrored, writer, nil
}
