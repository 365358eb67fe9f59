package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/httpapi"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/mcp"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/pkg/types"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	httpLog := svc.log.With("component", "httpapi")
	server := httpapi.NewServer(svc.cfg.HTTP.Addr, httpapi.RouterConfig{
		SearchHandler:   httpapi.NewSearchHandler(svc.router, svc.cfg.Search.MaxLimit, httpLog),
		BackfillHandler: httpapi.NewBackfillHandler(svc.job, httpLog),
		StatusHandler:   httpapi.NewStatusHandler(svc.store, svc.job, httpLog),
		CORSOrigins:     svc.cfg.HTTP.CORSOrigins,
		Logger:          httpLog,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return svc.scheduler().Run(gctx) })

	err = g.Wait()
	svc.log.Info("server stopped")
	return err
}

func mcpCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := mcp.NewServer(svc.store, svc.router, svc.job, svc.log.With("component", "mcp"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.Serve(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return svc.scheduler().Run(gctx) })

	return g.Wait()
}

func backfillCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.job.Run(ctx)
	if stats != nil {
		if werr := writeJSON(c.App.Writer, stats); werr != nil {
			return werr
		}
		for _, msg := range stats.FailureMessages() {
			svc.log.Warn("backfill item failed", "error", msg)
		}
	}
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: a query argument is required", types.ErrInvalidQuery)
	}

	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.router.Search(ctx, query, c.Int("limit"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, res)
}

func statusCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	status, err := svc.store.GetStatus(ctx)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, struct {
		*storage.Status
		Coverage float64 `json:"coverage"`
	}{status, status.Coverage()})
}

// seedRecord defaults active to true when the field is absent
type seedRecord struct {
	types.Program
	Active *bool `json:"active"`
}

func seedCommand(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var records []seedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	ctx, stop := signalContext(c)
	defer stop()

	svc, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.writer == nil {
		return fmt.Errorf("store %q does not support seeding", svc.cfg.Store.Driver)
	}

	for i := range records {
		p := records[i].Program
		p.Active = records[i].Active == nil || *records[i].Active
		if err := svc.writer.UpsertProgram(ctx, &p); err != nil {
			return fmt.Errorf("seed record %d (%s): %w", i, p.ID, err)
		}
	}

	svc.log.Info("seed complete", "programs", len(records))
	fmt.Fprintf(c.App.Writer, "Seeded %d programs\n", len(records))
	return nil
}

func versionCommand(c *cli.Context) error {
	w := c.App.Writer
	fmt.Fprintf(w, "Pharma Discount Search\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(w, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
