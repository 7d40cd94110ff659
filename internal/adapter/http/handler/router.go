package handler

import (
	"webhook-relay/internal/adapter/http/middleware"
	redisStore "webhook-relay/internal/adapter/storage/redis"
	"webhook-relay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds everything SetupRouter needs.
type RouterDeps struct {
	EventSvc       ports.EventService
	WebhookSvc     ports.WebhookRegistry
	DeliverySvc    ports.DeliveryService
	APIKey         string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes — everything behind API key auth. An empty key disables
	// authentication but still records the caller's client ID.
	v1 := r.Group("/api/v1")
	if deps.APIKey != "" {
		v1.Use(middleware.APIKeyAuth(deps.APIKey, deps.Logger))
	} else {
		v1.Use(middleware.ClientID())
	}

	eventHandler := NewEventHandler(deps.EventSvc)
	events := v1.Group("/events")
	{
		events.POST("", rl("events_submit"), eventHandler.Submit)
		events.GET("", rl("read"), eventHandler.List)
		events.GET("/stats/summary", rl("read"), eventHandler.Stats)
		events.GET("/:id", rl("read"), eventHandler.Get)
	}

	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("", rl("registry_write"), webhookHandler.Create)
		webhooks.GET("", rl("read"), webhookHandler.List)
		webhooks.GET("/:id", rl("read"), webhookHandler.Get)
		webhooks.PUT("/:id", rl("registry_write"), webhookHandler.Update)
		webhooks.DELETE("/:id", rl("registry_write"), webhookHandler.Delete)
		webhooks.POST("/:id/rotate-secret", rl("registry_write"), webhookHandler.RotateSecret)
	}

	deliveryHandler := NewDeliveryHandler(deps.DeliverySvc)
	deliveries := v1.Group("/deliveries")
	{
		deliveries.GET("", rl("read"), deliveryHandler.List)
		deliveries.GET("/stats/summary", rl("read"), deliveryHandler.Stats)
		deliveries.GET("/:id", rl("read"), deliveryHandler.Get)
		deliveries.POST("/:id/retry", rl("registry_write"), deliveryHandler.Retry)
	}

	return r
}
