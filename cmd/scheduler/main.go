/**
 * @description
 * This is the main entry point for the scheduler process. It is a non-HTTP,
 * long-running process that expires listings, lapses subscriptions and prunes
 * sessions on cron schedules.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/config"
	"github.com/tmasaiti/zimproperty/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found; using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()

	dbpool, err := store.NewPool(ctx, cfg.DatabaseURL, store.PoolSize{MaxConns: 5, MinConns: 1})
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed ensuring schema", "error", err)
		os.Exit(1)
	}

	// Expired listings must drop out of cached browse results, so the
	// scheduler shares the API's cache namespace when Redis is available.
	var cache app.PropertyCache
	redisClient, err := store.NewRedisClient(ctx, cfg.RedisURL)
	switch {
	case errors.Is(err, store.ErrRedisNotConfigured):
		logger.Info("redis not configured; cache invalidation skipped")
	case err != nil:
		logger.Warn("redis unavailable; cache invalidation skipped", "error", err)
	default:
		defer redisClient.Close()
		cache = app.NewRedisPropertyCache(redisClient, cfg.RedisKeyPrefix, time.Duration(cfg.PropertyCacheTTLSeconds)*time.Second)
	}

	repository := store.NewPostgresRepository(dbpool)
	jobs := app.NewJobs(repository, cache, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)

	scheduled := scheduler.Start()
	logger.Info("scheduler started", "jobs", scheduled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
