package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the aggregate processing state of an event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
)

// Event is a single occurrence a producer wants relayed to subscribers.
// Payload is held as the raw JSON document exactly as submitted; it is the
// canonical byte sequence signed on every delivery attempt.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         EventStatus     `json:"status"`
	RetryCount     int             `json:"retry_count"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AggregateEventStatus derives an event's status from its deliveries'
// status counts. Policy: pending until any attempt happens, processing while
// non-terminal deliveries remain, completed when every delivery is delivered,
// failed when all deliveries are terminal and at least one failed.
func AggregateEventStatus(counts map[DeliveryStatus]int64) EventStatus {
	var terminal, nonTerminal int64
	for status, n := range counts {
		if status.Terminal() {
			terminal += n
		} else {
			nonTerminal += n
		}
	}
	if terminal == 0 && nonTerminal == 0 {
		return EventStatusPending
	}
	if nonTerminal > 0 {
		if terminal > 0 || counts[DeliveryStatusRetrying] > 0 {
			return EventStatusProcessing
		}
		return EventStatusPending
	}
	if counts[DeliveryStatusFailed] > 0 {
		return EventStatusFailed
	}
	return EventStatusCompleted
}
