package ports

import (
	"context"
	"time"

	"webhook-relay/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureService handles HMAC-SHA256 signing of delivery payloads and
// webhook secret generation.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
	GenerateSecret() (string, error)
}

// Cache is a byte-value cache with TTL. Implementations must treat a missing
// key as (nil, nil); the core works correctly with the cache absent or cold.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// --- Service Ports (Business Logic) ---

// SubmitResult is the outcome of an event submission.
type SubmitResult struct {
	Event             *domain.Event
	DeliveriesCreated int
	IsDuplicate       bool
}

// EventService defines event intake and queries.
type EventService interface {
	// Submit enforces idempotency, persists the event and fans out deliveries
	// to matching active webhooks before returning.
	Submit(ctx context.Context, eventType string, payload []byte, idempotencyKey string) (*SubmitResult, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Event, []domain.Delivery, error)
	List(ctx context.Context, params EventListParams) ([]domain.Event, int64, error)
	Stats(ctx context.Context) (map[domain.EventStatus]int64, error)
}

// WebhookCreateInput holds validated input for webhook registration.
type WebhookCreateInput struct {
	Name        string
	URL         string
	EventTypes  []string
	ClientID    string
	Headers     map[string]string
	IsActive    *bool
	RetryPolicy *domain.RetryPolicy
}

// WebhookUpdateInput holds the mutable webhook fields; nil means unchanged.
type WebhookUpdateInput struct {
	Name        *string
	URL         *string
	EventTypes  []string
	Headers     map[string]string
	IsActive    *bool
	RetryPolicy *domain.RetryPolicy
}

// WebhookRegistry defines subscriber webhook management. Create and
// RotateSecret are the only operations whose result carries the secret.
type WebhookRegistry interface {
	Create(ctx context.Context, input WebhookCreateInput) (*domain.Webhook, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	List(ctx context.Context, params WebhookListParams) ([]domain.Webhook, int64, error)
	Update(ctx context.Context, id uuid.UUID, input WebhookUpdateInput) (*domain.Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RotateSecret(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
}

// DeliveryService defines delivery history queries and the manual retry op.
type DeliveryService interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	List(ctx context.Context, params DeliveryListParams) ([]domain.Delivery, int64, error)
	// Retry unconditionally resets a delivery to pending with a fresh retry
	// budget, making it immediately eligible for dispatch again. Works on any
	// prior state, terminal or not.
	Retry(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	Stats(ctx context.Context) (map[domain.DeliveryStatus]int64, error)
}
