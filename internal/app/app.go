// Package app wires every constructed dependency together and starts
// the process in either api or worker mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/cache"
	"github.com/preflight/governor/internal/config"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/lsh"
	"github.com/preflight/governor/internal/platform"
	"github.com/preflight/governor/internal/ratelimit"
	"github.com/preflight/governor/internal/store"
	"github.com/preflight/governor/internal/telemetry"
	"github.com/preflight/governor/internal/workflow"
)

// Run is the process entry point. It reads config, connects to
// infrastructure, and starts the mode named by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting governor", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	gateway := store.New(db)
	cacheGW := cache.New(rdb)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, gateway, rdb, cacheGW, metricsReg)
	case "worker":
		return runWorker(ctx, logger, gateway, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, gateway *store.Gateway, rdb *redis.Client, cacheGW *cache.Gateway, metricsReg *prometheus.Registry) error {
	auditWriter := audit.NewWriter(gateway.Unscoped(), logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	authMW := auth.NewMiddleware(gateway, cfg.APIKeySalt, auditWriter)
	limiter := ratelimit.New(cacheGW)
	lshIndex := lsh.New(cacheGW)
	providers := store.NewProviderStore(gateway.Unscoped())

	srv := httpserver.NewServer(httpserver.Deps{
		Config:     cfg,
		Logger:     logger,
		DB:         gateway.Unscoped(),
		Redis:      rdb,
		Store:      gateway,
		MetricsReg: metricsReg,
		AuthMW:     authMW,
		Limiter:    limiter,
		AuditW:     auditWriter,
		LSHIndex:   lshIndex,
		Providers:  providers,
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, logger *slog.Logger, gateway *store.Gateway, rdb *redis.Client) error {
	w := workflow.NewWorker(rdb, gateway, logger)
	return w.Run(ctx)
}
