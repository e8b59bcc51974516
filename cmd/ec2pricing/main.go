// ec2pricing - EC2 cost estimation service
//
// Usage:
//   ec2pricing serve [--port 8080]
//   ec2pricing catalog update [--regions us-east-1,eu-west-1] [--force]
//   ec2pricing catalog status
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"ec2-pricing/api"
	"ec2-pricing/db/clickhouse"
	"ec2-pricing/ingestion"
	"ec2-pricing/pricing"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "ec2pricing",
		Usage:   "EC2 cost estimation API and price catalog ingestion",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"EC2PRICING_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "ec2_pricing",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			serveCommand(),
			catalogCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func newStore(c *cli.Context) (*clickhouse.Store, error) {
	store, err := clickhouse.NewStore(&clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return store, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the pricing API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"EC2PRICING_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"EC2PRICING_CORS_ORIGINS"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	log := newLogger(c)

	store, err := newStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	engine := pricing.NewEngine(store, log.With().Str("component", "engine").Logger())

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = corsOrigins

	server := api.NewServer(engine, store, cfg, log.With().Str("component", "api").Logger())
	return server.StartWithGracefulShutdown()
}

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Manage the price catalog warehouse",
		Subcommands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Download the current AWS price lists and load them",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "regions",
						Usage:   "Comma-separated savings plan regions (default: standard region set)",
						EnvVars: []string{"AWS_REGIONS"},
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Value:   3,
						Usage:   "Concurrent downloads",
						EnvVars: []string{"DOWNLOAD_CONCURRENCY"},
					},
					&cli.BoolFlag{
						Name:    "force",
						Usage:   "Re-ingest even when the current version was already processed",
						EnvVars: []string{"FORCE_UPDATE"},
					},
					&cli.IntFlag{
						Name:  "line-limit",
						Usage: "Cap data rows per file (testing)",
					},
					&cli.StringFlag{
						Name:  "base-url",
						Value: ingestion.DefaultBaseURL,
						Usage: "Price list endpoint base URL",
					},
					&cli.DurationFlag{
						Name:    "request-timeout",
						Value:   120 * time.Second,
						Usage:   "HTTP request timeout",
						EnvVars: []string{"REQUEST_TIMEOUT_SECONDS"},
					},
				},
				Action: runCatalogUpdate,
			},
			{
				Name:   "status",
				Usage:  "Show recently processed versions and loaded files",
				Action: runCatalogStatus,
			},
		},
	}
}

func runCatalogUpdate(c *cli.Context) error {
	log := newLogger(c)
	ctx := context.Background()

	store, err := newStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := ingestion.DefaultConfig()
	cfg.BaseURL = c.String("base-url")
	cfg.Concurrency = c.Int("concurrency")
	cfg.RequestTimeout = c.Duration("request-timeout")
	cfg.Force = c.Bool("force")
	cfg.LineLimit = c.Int("line-limit")
	if regions := c.String("regions"); regions != "" {
		cfg.Regions = nil
		for _, r := range strings.Split(regions, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.Regions = append(cfg.Regions, r)
			}
		}
	}

	// The Price List API needs credentials; the job falls back to the
	// public index when none are configured.
	var resolver ingestion.VersionResolver
	if client, err := ingestion.NewPriceListClient(ctx); err == nil {
		resolver = client
	} else {
		log.Warn().Err(err).Msg("price list api client unavailable")
	}

	job := ingestion.NewJob(cfg, store, resolver, log.With().Str("component", "ingestion").Logger())
	result, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("catalog update failed: %w", err)
	}

	if result.UpToDate {
		fmt.Printf("Catalog is already up to date (version %s)\n", result.Version)
		return nil
	}
	fmt.Printf("Catalog update complete: version %s, run %s\n", result.Version, result.RunID)
	fmt.Printf("  loaded:  %d\n", len(result.FilesLoaded))
	fmt.Printf("  skipped: %d\n", len(result.FilesSkipped))
	for _, e := range result.Errors {
		fmt.Printf("  error:   %s\n", e)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d file(s) failed to load", len(result.Errors))
	}
	return nil
}

func runCatalogStatus(c *cli.Context) error {
	ctx := context.Background()

	store, err := newStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureBookkeeping(ctx); err != nil {
		return err
	}

	versions, err := store.RecentVersions(ctx, 10)
	if err != nil {
		return err
	}
	fmt.Println("Recent catalog versions:")
	if len(versions) == 0 {
		fmt.Println("  (none)")
	}
	for _, v := range versions {
		fmt.Printf("  %-20s run=%s processed=%s\n",
			v.VersionID, v.RunID, v.ProcessedAt.Format(time.RFC3339))
	}

	files, err := store.RecentFiles(ctx, 20)
	if err != nil {
		return err
	}
	fmt.Println("Recent catalog files:")
	if len(files) == 0 {
		fmt.Println("  (none)")
	}
	for _, f := range files {
		fmt.Printf("  %-50s %-8s %10d bytes %s\n",
			f.Filename, f.Status, f.SizeBytes, f.DownloadedAt.Format(time.RFC3339))
	}
	return nil
}
