// Command coupon-ingest bulk loads coupon documents from gzip-compressed
// JSON-lines files into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-service/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory scanned for *.jsonl.gz files when none are given as arguments")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "files decoded concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
		if err != nil {
			slog.Error("list input files", slog.String("error", err.Error()))
			os.Exit(1)
		}
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no input files", slog.String("data_dir", dataDir))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, workers); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, workers int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	in := newIngester(postgres.NewCouponRepository(pool), workers)
	stats, err := in.Ingest(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Uint64("read", stats.Read),
		slog.Uint64("invalid", stats.Invalid),
		slog.Uint64("duplicates", stats.Duplicates),
		slog.Uint64("written", stats.Written),
	)
	return nil
}
