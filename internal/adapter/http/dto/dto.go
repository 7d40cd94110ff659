package dto

import (
	"encoding/json"
	"time"

	"webhook-relay/internal/core/domain"
)

// SubmitEventRequest is the request body for event intake.
type SubmitEventRequest struct {
	EventType      string          `json:"event_type" binding:"required,max=200,safe_id"`
	Payload        json.RawMessage `json:"payload" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"omitempty,max=255"`
}

// WebhookCreateRequest is the request body for webhook registration.
type WebhookCreateRequest struct {
	Name        string              `json:"name" binding:"required,min=1,max=100"`
	URL         string              `json:"url" binding:"required,safe_url"`
	EventTypes  []string            `json:"event_types" binding:"required,min=1,dive,required,max=200"`
	Headers     map[string]string   `json:"headers,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
	RetryPolicy *domain.RetryPolicy `json:"retry_policy,omitempty"`
}

// WebhookUpdateRequest is the request body for partial webhook updates.
// Absent fields are left unchanged.
type WebhookUpdateRequest struct {
	Name        *string             `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	URL         *string             `json:"url,omitempty" binding:"omitempty,safe_url"`
	EventTypes  []string            `json:"event_types,omitempty" binding:"omitempty,min=1,dive,required,max=200"`
	Headers     map[string]string   `json:"headers,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
	RetryPolicy *domain.RetryPolicy `json:"retry_policy,omitempty"`
}

// EventResponse is the wire representation of an event.
type EventResponse struct {
	ID             string          `json:"id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         string          `json:"status"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SubmitEventResponse is the response body for event intake.
type SubmitEventResponse struct {
	Event             EventResponse `json:"event"`
	DeliveriesCreated int           `json:"deliveries_created"`
	Duplicate         bool          `json:"duplicate"`
}

// EventDetailResponse is an event together with its deliveries.
type EventDetailResponse struct {
	Event      EventResponse      `json:"event"`
	Deliveries []DeliveryResponse `json:"deliveries"`
}

// WebhookResponse is the wire representation of a webhook. The signing secret
// is never included; see WebhookSecretResponse.
type WebhookResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	EventTypes  []string           `json:"event_types"`
	Headers     map[string]string  `json:"headers,omitempty"`
	IsActive    bool               `json:"is_active"`
	RetryPolicy domain.RetryPolicy `json:"retry_policy"`
	ClientID    string             `json:"client_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// WebhookSecretResponse carries the signing secret. Returned only from
// creation and secret rotation.
type WebhookSecretResponse struct {
	WebhookResponse
	Secret string `json:"secret"`
}

// DeliveryResponse is the wire representation of a delivery attempt record.
type DeliveryResponse struct {
	ID              string            `json:"id"`
	EventID         string            `json:"event_id"`
	WebhookID       string            `json:"webhook_id"`
	Status          string            `json:"status"`
	HTTPStatus      *int              `json:"http_status,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    *string           `json:"response_body,omitempty"`
	RetryCount      int               `json:"retry_count"`
	NextRetryAt     *time.Time        `json:"next_retry_at,omitempty"`
	LastAttemptAt   *time.Time        `json:"last_attempt_at,omitempty"`
	Error           *string           `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ListResponse wraps a paginated collection.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// EventStatsResponse is the response for event statistics.
type EventStatsResponse struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// DeliveryStatsResponse is the response for delivery statistics.
type DeliveryStatsResponse struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Retrying  int64 `json:"retrying"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// FromEvent converts a domain event.
func FromEvent(e *domain.Event) EventResponse {
	return EventResponse{
		ID:             e.ID.String(),
		EventType:      e.EventType,
		Payload:        e.Payload,
		IdempotencyKey: e.IdempotencyKey,
		Status:         string(e.Status),
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// FromWebhook converts a domain webhook, omitting the secret.
func FromWebhook(w *domain.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:          w.ID.String(),
		Name:        w.Name,
		URL:         w.URL,
		EventTypes:  w.EventTypes,
		Headers:     w.Headers,
		IsActive:    w.IsActive,
		RetryPolicy: w.RetryPolicy,
		ClientID:    w.ClientID,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// FromWebhookWithSecret converts a domain webhook including the secret.
func FromWebhookWithSecret(w *domain.Webhook) WebhookSecretResponse {
	return WebhookSecretResponse{
		WebhookResponse: FromWebhook(w),
		Secret:          w.Secret,
	}
}

// FromDelivery converts a domain delivery.
func FromDelivery(d *domain.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:              d.ID.String(),
		EventID:         d.EventID.String(),
		WebhookID:       d.WebhookID.String(),
		Status:          string(d.Status),
		HTTPStatus:      d.HTTPStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		RetryCount:      d.RetryCount,
		NextRetryAt:     d.NextRetryAt,
		LastAttemptAt:   d.LastAttemptAt,
		Error:           d.Error,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// FromDeliveries converts a slice of domain deliveries.
func FromDeliveries(ds []domain.Delivery) []DeliveryResponse {
	out := make([]DeliveryResponse, len(ds))
	for i := range ds {
		out[i] = FromDelivery(&ds[i])
	}
	return out
}

// NewListResponse assembles a pagination envelope.
func NewListResponse[T any](items []T, total int64, page, pageSize int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return ListResponse[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
