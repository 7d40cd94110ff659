package service

import (
	"time"

	"webhook-relay/internal/core/domain"
)

// RetryScheduler decides what happens to a delivery after a failed attempt:
// reschedule with exponential backoff, or terminate once retries run out.
type RetryScheduler struct {
	now func() time.Time
}

// NewRetryScheduler creates a scheduler using wall-clock time.
func NewRetryScheduler() *RetryScheduler {
	return &RetryScheduler{now: time.Now}
}

// ScheduleOrFail mutates delivery in place after a failed attempt.
// If retries remain under policy: status=retrying, retryCount incremented,
// nextRetryAt = now + min(initialDelayMs * multiplier^retryCount, maxDelayMs).
// Otherwise: status=failed (terminal), nextRetryAt cleared.
// The error detail and attempt timestamp are recorded either way.
func (s *RetryScheduler) ScheduleOrFail(delivery *domain.Delivery, policy domain.RetryPolicy, attemptErr string) {
	policy = policy.Normalized()
	now := s.now().UTC()

	delivery.Error = &attemptErr
	delivery.LastAttemptAt = &now
	delivery.UpdatedAt = now

	if delivery.RetryCount < policy.MaxRetries {
		next := now.Add(policy.Delay(delivery.RetryCount))
		delivery.Status = domain.DeliveryStatusRetrying
		delivery.RetryCount++
		delivery.NextRetryAt = &next
		return
	}

	delivery.Status = domain.DeliveryStatusFailed
	delivery.NextRetryAt = nil
}

// MarkDelivered mutates delivery in place after a successful attempt.
func (s *RetryScheduler) MarkDelivered(delivery *domain.Delivery) {
	now := s.now().UTC()
	delivery.Status = domain.DeliveryStatusDelivered
	delivery.NextRetryAt = nil
	delivery.Error = nil
	delivery.LastAttemptAt = &now
	delivery.UpdatedAt = now
}

// FailFatal terminates the delivery without consuming retry budget. Used when
// an attempt cannot ever succeed (event or webhook reference no longer
// resolves).
func (s *RetryScheduler) FailFatal(delivery *domain.Delivery, reason string) {
	now := s.now().UTC()
	delivery.Status = domain.DeliveryStatusFailed
	delivery.NextRetryAt = nil
	delivery.Error = &reason
	delivery.LastAttemptAt = &now
	delivery.UpdatedAt = now
}
