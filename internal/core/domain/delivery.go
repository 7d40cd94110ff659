package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the state of one event-to-webhook relay.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Terminal reports whether no further automatic attempts happen in this state.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// Delivery is the tracked attempt lineage of relaying one Event to one
// Webhook. Exactly one exists per (event, webhook) pair. Event and Webhook
// are referenced by identifier, never embedded, so webhook edits after
// creation are honored on every subsequent attempt.
type Delivery struct {
	ID              uuid.UUID         `json:"id"`
	EventID         uuid.UUID         `json:"event_id"`
	WebhookID       uuid.UUID         `json:"webhook_id"`
	Status          DeliveryStatus    `json:"status"`
	HTTPStatus      *int              `json:"http_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    *string           `json:"response_body,omitempty"`
	RetryCount      int               `json:"retry_count"`
	NextRetryAt     *time.Time        `json:"next_retry_at,omitempty"`
	LastAttemptAt   *time.Time        `json:"last_attempt_at,omitempty"`
	Error           *string           `json:"error,omitempty"`
	ClaimedUntil    *time.Time        `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewDelivery constructs the pending delivery created at fan-out time.
func NewDelivery(eventID, webhookID uuid.UUID) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		ID:        uuid.New(),
		EventID:   eventID,
		WebhookID: webhookID,
		Status:    DeliveryStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetForManualRetry applies the operator-triggered retry: back to pending
// with a clean attempt history, regardless of prior terminal state.
func (d *Delivery) ResetForManualRetry() {
	d.Status = DeliveryStatusPending
	d.RetryCount = 0
	d.NextRetryAt = nil
	d.Error = nil
	d.UpdatedAt = time.Now().UTC()
}
