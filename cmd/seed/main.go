/**
 * @description
 * One-shot command that creates the admin account and the demo seller and
 * agent. Existing usernames are skipped, so it is safe to run on every deploy.
 */
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/config"
	"github.com/tmasaiti/zimproperty/internal/store"
)

const (
	defaultAdminPassword = "admin123"
	defaultDemoPassword  = "password123"
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

	adminPassword := cfg.SeedAdminPassword
	if adminPassword == "" {
		adminPassword = defaultAdminPassword
		if cfg.IsProduction() {
			logger.Warn("seeding admin with the default password", "env", "SEED_ADMIN_PASSWORD")
		}
	}
	demoPassword := cfg.SeedDemoPassword
	if demoPassword == "" {
		demoPassword = defaultDemoPassword
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbpool, err := store.NewPool(ctx, cfg.DatabaseURL, store.PoolSize{MaxConns: 2, MinConns: 1})
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed ensuring schema", "error", err)
		os.Exit(1)
	}

	// The signer is unused while seeding but the service requires one.
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "seed"
	}
	service := app.NewService(store.NewPostgresRepository(dbpool), auth.NewSessionSigner(secret), cfg.EventExchange)

	result, err := service.Seed(ctx, adminPassword, demoPassword)
	if err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "created", result.Created, "skipped", result.Skipped)
}
