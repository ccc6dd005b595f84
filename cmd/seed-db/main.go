// Command seed-db seeds the admin API key and sample coupons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-service/internal/couponjson"
	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		couponsFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "", "optional JSON array of coupon documents, e.g. db/seed/coupons.json")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COUPON_API_KEY_PEPPER")
	}
	if apiKey != "" && apiKeyPepper == "" {
		slog.Error("API key pepper is required when seeding an API key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, couponsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if couponsFile != "" {
		if err := seedCoupons(ctx, postgres.NewCouponRepository(pool), couponsFile); err != nil {
			return errors.Wrap(err, "seed coupons")
		}
	}

	if apiKey != "" {
		if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
	}

	return nil
}

// couponWriter is the subset of the coupon repository the seeder needs.
type couponWriter interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

func seedCoupons(ctx context.Context, repo couponWriter, path string) error {
	slog.Info("reading coupons file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}

	coupons, err := couponjson.DecodeCoupons(jx.DecodeBytes(data))
	if err != nil {
		return errors.Wrap(err, "parse coupons")
	}

	slog.Info("writing coupons", slog.Int("count", len(coupons)))

	for _, c := range coupons {
		// Documents with an id are upserted so reseeding is idempotent.
		write := repo.Upsert
		if c.ID == "" {
			write = repo.Create
		}
		if err := write(ctx, c); err != nil {
			return errors.Wrapf(err, "write %s coupon", c.Kind())
		}

		slog.Info("seeded coupon", slog.String("id", c.ID), slog.String("type", string(c.Kind())))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.Upsert(ctx, auth.Hash([]byte(pepper), apiKey), "admin", []string{auth.ScopeCouponsWrite}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("name", "admin"))

	return nil
}
