/**
 * @description
 * This is the main entry point for the marketplace HTTP API. It loads
 * configuration, connects to PostgreSQL (creating the schema if needed),
 * optionally connects Redis for the browse cache and login throttle, starts the
 * outbox dispatcher and the new-listing consumer, and serves the `/api` routes.
 */
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmasaiti/zimproperty/internal/api"
	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/config"
	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/rabbitmq"
	"github.com/tmasaiti/zimproperty/pkg/stripeclient"
)

func maskAMQPURLForLog(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"cannot load config\" err=%v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid config\" err=%v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := store.NewPool(rootCtx, cfg.DatabaseURL, store.PoolSize{MaxConns: 20, MinConns: 2})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database unavailable\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connection established\"")

	if err := store.EnsureSchema(rootCtx, dbpool); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"failed ensuring schema\" err=%v", err)
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, auth.NewSessionSigner(cfg.SessionSecret), cfg.EventExchange)

	if cfg.StripeSecretKey == "" {
		log.Println("level=warn component=bootstrap msg=\"stripe secret key missing; checkout disabled\" env=STRIPE_SECRET_KEY")
		service.SetPaymentGateway(nil, cfg.StripeWebhookSecret)
	} else {
		service.SetPaymentGateway(stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey), cfg.StripeWebhookSecret)
	}
	if cfg.StripeWebhookSecret == "" {
		log.Println("level=warn component=bootstrap msg=\"stripe webhook secret missing; webhooks will be rejected\" env=STRIPE_WEBHOOK_SECRET")
	}

	redisClient, err := store.NewRedisClient(rootCtx, cfg.RedisURL)
	switch {
	case errors.Is(err, store.ErrRedisNotConfigured):
		log.Println("level=warn component=bootstrap msg=\"redis url missing; browse cache and login throttle disabled\" env=REDIS_URL")
	case err != nil:
		log.Printf("level=warn component=bootstrap msg=\"redis unavailable; browse cache and login throttle disabled\" err=%v", err)
	default:
		defer redisClient.Close()
		log.Println("level=info component=bootstrap msg=\"redis connected\"")
		if cfg.PropertyCacheTTLSeconds > 0 {
			service.SetPropertyCache(app.NewRedisPropertyCache(redisClient, cfg.RedisKeyPrefix, time.Duration(cfg.PropertyCacheTTLSeconds)*time.Second))
		}
		service.SetLoginRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix), cfg.LoginRateLimitPerMinute)
	}

	// Event fan-out: the outbox is drained to RabbitMQ when configured, or to
	// the in-process consumer otherwise.
	consumer := app.NewEventConsumer(repository)
	var dispatcher *app.OutboxDispatcher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; delivering events in-process\" env=RABBITMQ_URL")
		local := app.NewLocalPublisher(consumer.Bindings())
		dispatcher = app.NewOutboxDispatcherWithPublisher(repository, func() (rabbitmq.Publisher, error) {
			return local, nil
		})
	} else {
		log.Printf("level=info component=bootstrap msg=\"rabbitmq configured\" url=%s", maskAMQPURLForLog(cfg.RabbitMQURL))
		dispatcher = app.NewOutboxDispatcher(repository, cfg.RabbitMQURL)

		amqpConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; new-listing broadcast paused\" err=%v", err)
		} else {
			defer amqpConsumer.Close()
			if err := amqpConsumer.ConsumeWithBindings(service.Exchange(), cfg.PropertyFanoutQueue, consumer.Bindings()); err != nil {
				log.Printf("level=warn component=bootstrap msg=\"failed to bind consumer\" queue=%s err=%v", cfg.PropertyFanoutQueue, err)
			} else {
				log.Printf("level=info component=bootstrap msg=\"consumer bound\" queue=%s", cfg.PropertyFanoutQueue)
			}
		}
	}
	go dispatcher.Run(rootCtx)

	handler := api.NewHandler(service, cfg.IsProduction())
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(handler, cfg.AllowedOrigins(), cfg.TrustProxyHeaders),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=bootstrap msg=\"server starting\" port=%s env=%s", cfg.ServerPort, cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=bootstrap msg=\"could not start server\" err=%v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("level=info component=bootstrap msg=\"shutting down server\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=bootstrap msg=\"server shutdown failed\" err=%v", err)
		os.Exit(1)
	}
	log.Println("level=info component=bootstrap msg=\"server gracefully stopped\"")
}
