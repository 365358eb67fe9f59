package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "discountsearch",
		Usage:   "Hybrid semantic and keyword search over pharmaceutical discount programs",
		Version: version,
		Flags:   config.Flags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and run the periodic embedding backfill",
				Action: serveCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Action: mcpCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Embed active programs that have no embedding yet",
				Action: backfillCommand,
			},
			{
				Name:      "search",
				Usage:     "Search discount programs and print the result as JSON",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of programs to return",
						Value:   config.DefaultLimit,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Print program counts and embedding coverage",
				Action: statusCommand,
			},
			{
				Name:   "seed",
				Usage:  "Load programs from a JSON array into the record store",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to a JSON file holding an array of programs",
						Required: true,
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print build information",
				Action: versionCommand,
			},
		},
	}
}
