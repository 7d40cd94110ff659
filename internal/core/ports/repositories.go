package ports

import (
	"context"
	"errors"
	"time"

	"webhook-relay/internal/core/domain"

	"github.com/google/uuid"
)

// ErrDuplicateIdempotencyKey is returned by EventRepository.Create when the
// unique constraint on idempotency_key rejects the insert. Callers convert it
// into the duplicate-return path.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already exists")

// EventRepository defines persistence operations for events.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error)
	List(ctx context.Context, params EventListParams) ([]domain.Event, int64, error)
	// ListPendingByTypes returns pending events whose type is in types,
	// oldest first. Used for retroactive fan-out on webhook registration.
	ListPendingByTypes(ctx context.Context, types []string) ([]domain.Event, error)
	// UpdateStatus sets the event's aggregate status. lastError is written
	// as-is; pass nil to clear it.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus, lastError *string) error
	CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error)
}

// EventListParams holds filter + pagination for listing events.
type EventListParams struct {
	Status    *domain.EventStatus
	EventType *string
	Limit     int
	Offset    int
}

// WebhookRepository defines persistence operations for webhooks.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *domain.Webhook) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	List(ctx context.Context, params WebhookListParams) ([]domain.Webhook, int64, error)
	// ListActiveByEventType returns active webhooks whose subscribed-type set
	// contains eventType.
	ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Webhook, error)
	Update(ctx context.Context, webhook *domain.Webhook) error
	// Delete removes the webhook. Returns false if no such webhook exists.
	// Deliveries referencing it are kept untouched.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// WebhookListParams holds filter + pagination for listing webhooks.
type WebhookListParams struct {
	ClientID string
	IsActive *bool
	Limit    int
	Offset   int
}

// DeliveryRepository defines persistence for deliveries and their status
// transitions, including the claim lease the dispatch engine relies on.
type DeliveryRepository interface {
	// Create inserts the delivery unless one already exists for its
	// (event, webhook) pair. Returns true if a row was inserted.
	Create(ctx context.Context, delivery *domain.Delivery) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	List(ctx context.Context, params DeliveryListParams) ([]domain.Delivery, int64, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error)
	// ListPending returns unclaimed pending deliveries, oldest first.
	ListPending(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	// ListDueRetries returns unclaimed retrying deliveries with
	// nextRetryAt <= now, earliest due first.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	// Claim leases the delivery until leaseUntil if it is still eligible
	// (pending or retrying, not under an unexpired lease). Returns true only
	// for the single caller that wins the conditional update.
	Claim(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error)
	// Update persists the attempt outcome fields and releases the claim.
	Update(ctx context.Context, delivery *domain.Delivery) error
	CountByStatus(ctx context.Context) (map[domain.DeliveryStatus]int64, error)
	CountByStatusForEvent(ctx context.Context, eventID uuid.UUID) (map[domain.DeliveryStatus]int64, error)
}

// DeliveryListParams holds filter + pagination for listing deliveries.
type DeliveryListParams struct {
	Status    *domain.DeliveryStatus
	EventID   *uuid.UUID
	WebhookID *uuid.UUID
	Limit     int
	Offset    int
}
