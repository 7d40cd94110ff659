package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-relay/config"
	httpHandler "webhook-relay/internal/adapter/http/handler"
	"webhook-relay/internal/adapter/http/middleware"
	pgStorage "webhook-relay/internal/adapter/storage/postgres"
	redisStorage "webhook-relay/internal/adapter/storage/redis"
	"webhook-relay/internal/core/ports"
	"webhook-relay/internal/service"
	"webhook-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Webhook Relay")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories
	eventRepo := pgStorage.NewEventRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepo(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)

	healthCheckers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}

	// Redis is optional: without it the service runs with caching and rate
	// limiting disabled.
	var cache ports.Cache
	var rateLimitStore *redisStorage.RateLimitStore
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		cache = redisStorage.NewCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled: caching and rate limiting are off")
	}

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	fanout := service.NewFanoutMatcher(eventRepo, webhookRepo, deliveryRepo, cache, cfg.Cache.WebhookTTL, log)

	eventSvc := service.NewEventService(eventRepo, deliveryRepo, fanout, cache, cfg.Cache.StatsTTL, log)
	webhookSvc := service.NewWebhookRegistry(webhookRepo, sigSvc, fanout, cache, log)
	deliverySvc := service.NewDeliveryService(deliveryRepo, eventRepo, cache, cfg.Cache.StatsTTL, log)

	// Dispatch engine: the single scheduling authority for deliveries
	engine := service.NewDispatchEngine(
		eventRepo,
		webhookRepo,
		deliveryRepo,
		sigSvc,
		&http.Client{Timeout: cfg.Dispatch.HTTPTimeout},
		service.DispatchConfig{
			Concurrency:  cfg.Dispatch.Concurrency,
			PollInterval: cfg.Dispatch.PollInterval,
			BatchSize:    cfg.Dispatch.BatchSize,
			ClaimLease:   cfg.Dispatch.ClaimLease,
		},
		log,
	)
	engine.Start(ctx)
	log.Info().
		Int("concurrency", cfg.Dispatch.Concurrency).
		Dur("poll_interval", cfg.Dispatch.PollInterval).
		Msg("Dispatch engine started")

	// Rate limit rules, with the intake group limit taken from configuration
	rules := middleware.DefaultRateLimitRules()
	if cfg.RateLimit.IntakePerMinute > 0 {
		rules["events_submit"] = middleware.RateLimitRule{
			Limit:  cfg.RateLimit.IntakePerMinute,
			Window: time.Minute,
		}
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		EventSvc:       eventSvc,
		WebhookSvc:     webhookSvc,
		DeliverySvc:    deliverySvc,
		APIKey:         cfg.Auth.APIKey,
		RateLimitStore: rateLimitStore,
		RateLimitRules: rules,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the engine after the HTTP surface is down so in-flight attempts
	// can finish recording their outcome.
	engine.Stop()

	log.Info().Msg("Server exited")
}
