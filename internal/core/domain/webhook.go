package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Default retry policy values, applied to any field left unset.
const (
	DefaultMaxRetries        = 5
	DefaultInitialDelayMs    = 1000
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 60000
)

// RetryPolicy controls per-webhook retry behavior.
type RetryPolicy struct {
	MaxRetries        int     `json:"maxRetries"`
	InitialDelayMs    int     `json:"initialDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxDelayMs        int     `json:"maxDelayMs"`
}

// DefaultRetryPolicy returns the policy used when a webhook specifies none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		InitialDelayMs:    DefaultInitialDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelayMs:        DefaultMaxDelayMs,
	}
}

// Normalized returns a copy with out-of-range fields replaced by defaults.
// Explicit edge values stay: MaxRetries 0 disables retries and
// BackoffMultiplier 1 gives a constant delay.
func (p RetryPolicy) Normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialDelayMs <= 0 {
		p.InitialDelayMs = DefaultInitialDelayMs
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if p.MaxDelayMs <= 0 {
		p.MaxDelayMs = DefaultMaxDelayMs
	}
	return p
}

// Delay computes the backoff before attempt retryCount+1:
// min(initialDelayMs * backoffMultiplier^retryCount, maxDelayMs).
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	p = p.Normalized()
	delayMs := float64(p.InitialDelayMs) * math.Pow(p.BackoffMultiplier, float64(retryCount))
	if delayMs > float64(p.MaxDelayMs) {
		delayMs = float64(p.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// Webhook is a subscriber's registered endpoint plus its subscription and
// security configuration. Secret is excluded from JSON marshaling; it is
// surfaced only through the explicit create/rotate response DTOs.
type Webhook struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	EventTypes  []string          `json:"event_types"`
	Secret      string            `json:"-"`
	Headers     map[string]string `json:"headers"`
	IsActive    bool              `json:"is_active"`
	RetryPolicy RetryPolicy       `json:"retry_policy"`
	ClientID    string            `json:"client_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SubscribesTo reports whether the webhook's subscribed-type set contains
// eventType. Case-sensitive exact match, no wildcards.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
