package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"webhook-relay/pkg/apperror"
	"webhook-relay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Header names for API key authentication
	HeaderAPIKey   = "X-API-Key"
	HeaderClientID = "X-Client-ID"

	// Context keys
	CtxClientID = "client_id"

	// DefaultClientID identifies callers that send no X-Client-ID header.
	DefaultClientID = "default"
)

// APIKeyAuth creates a middleware that checks the static API key and records
// the caller's client ID in the request context.
func APIKeyAuth(apiKey string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderAPIKey)
		if provided == "" {
			response.Error(c, apperror.ErrMissingAPIKey())
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("rejected request with invalid API key")
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		clientID := c.GetHeader(HeaderClientID)
		if clientID == "" {
			clientID = DefaultClientID
		}
		c.Set(CtxClientID, clientID)

		c.Next()
	}
}

// ClientID records the caller's client ID without checking credentials.
// Used when API key auth is disabled (development mode).
func ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(HeaderClientID)
		if clientID == "" {
			clientID = DefaultClientID
		}
		c.Set(CtxClientID, clientID)
		c.Next()
	}
}

// RequestLogger creates a structured request logging middleware.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
