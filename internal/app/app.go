// Package app wires the coupon server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/coupon-service/internal/cache"
	"github.com/xenking/coupon-service/internal/domain/auth"
	"github.com/xenking/coupon-service/internal/domain/coupon"
	"github.com/xenking/coupon-service/internal/handler"
	"github.com/xenking/coupon-service/internal/storage/postgres"
	"github.com/xenking/coupon-service/pkg/health"
	"github.com/xenking/coupon-service/pkg/httpmiddleware"
)

const serviceName = "coupon-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var repo coupon.Repository = postgres.NewCouponRepository(pool)
	if cfg.Redis.Addr != "" {
		opts, err := cfg.Redis.Options()
		if err != nil {
			return errors.Wrap(err, "redis options")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		// Readiness tolerates brief cache outages.
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb), health.WithThresholds(5, 1))
		repo = cache.NewCoupons(repo, rdb, cfg.Cache.TTL)
		lg.Info("Coupon cache enabled", zap.String("redis", opts.Addr), zap.Int("db", opts.DB), zap.Duration("ttl", cfg.Cache.TTL))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	svc := coupon.NewService(repo, m.TracerProvider())
	h := handler.NewHandler(svc)

	var guard func(http.Handler) http.Handler
	if cfg.APIKeyPepper != "" {
		authn := auth.NewAuthenticator(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
		guard = handler.RequireAPIKey(authn, auth.ScopeCouponsWrite)
	} else {
		lg.Warn("API key pepper not set, coupon writes are unauthenticated")
	}

	router := handler.NewRouter(h, guard, []func(http.Handler) http.Handler{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:         cfg.RateLimit.Max,
			Window:      cfg.RateLimit.Window,
			TrustProxy:  cfg.RateLimit.TrustProxy,
			ExemptPaths: []string{"/livez", "/readyz"},
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	}, func(r chi.Router) { healthSvc.Mount(r) })

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           router,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
