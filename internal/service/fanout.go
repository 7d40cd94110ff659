package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Cache key layout shared by the fan-out matcher and the webhook registry
// (which invalidates on configuration writes).
const (
	cacheKeyWebhookMatchPrefix = "webhooks:event:"
	cacheKeyEventStats         = "stats:events"
	cacheKeyDeliveryStats      = "stats:deliveries"
)

func webhookMatchKey(eventType string) string {
	return cacheKeyWebhookMatchPrefix + eventType
}

// FanoutMatcher computes the set of matching active webhooks for an event and
// creates one pending Delivery per match. Creation is idempotent on the
// (event, webhook) pair so that intake fan-out and retroactive fan-out can
// overlap without duplicating deliveries.
type FanoutMatcher struct {
	eventRepo    ports.EventRepository
	webhookRepo  ports.WebhookRepository
	deliveryRepo ports.DeliveryRepository
	cache        ports.Cache // nil disables the match cache
	cacheTTL     time.Duration
	log          zerolog.Logger
}

// NewFanoutMatcher creates a fan-out matcher. cache may be nil.
func NewFanoutMatcher(
	eventRepo ports.EventRepository,
	webhookRepo ports.WebhookRepository,
	deliveryRepo ports.DeliveryRepository,
	cache ports.Cache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *FanoutMatcher {
	return &FanoutMatcher{
		eventRepo:    eventRepo,
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		cache:        cache,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// MatchAndCreate creates one pending delivery per active webhook subscribed
// to the event's type, skipping pairs that already have one.
func (m *FanoutMatcher) MatchAndCreate(ctx context.Context, event *domain.Event) ([]domain.Delivery, error) {
	webhookIDs, err := m.matchingWebhookIDs(ctx, event.EventType)
	if err != nil {
		return nil, err
	}

	var created []domain.Delivery
	for _, webhookID := range webhookIDs {
		delivery := domain.NewDelivery(event.ID, webhookID)
		inserted, err := m.deliveryRepo.Create(ctx, delivery)
		if err != nil {
			return created, fmt.Errorf("create delivery for webhook %s: %w", webhookID, err)
		}
		if inserted {
			created = append(created, *delivery)
		}
	}

	m.log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int("deliveries_created", len(created)).
		Msg("event fanned out")

	return created, nil
}

// RetroactiveMatch creates deliveries for existing pending events matching a
// newly registered webhook, skipping (event, webhook) pairs that already
// exist.
func (m *FanoutMatcher) RetroactiveMatch(ctx context.Context, webhook *domain.Webhook) ([]domain.Delivery, error) {
	if !webhook.IsActive || len(webhook.EventTypes) == 0 {
		return nil, nil
	}

	events, err := m.eventRepo.ListPendingByTypes(ctx, webhook.EventTypes)
	if err != nil {
		return nil, fmt.Errorf("list pending events for retroactive fanout: %w", err)
	}

	var created []domain.Delivery
	for _, event := range events {
		delivery := domain.NewDelivery(event.ID, webhook.ID)
		inserted, err := m.deliveryRepo.Create(ctx, delivery)
		if err != nil {
			return created, fmt.Errorf("create retroactive delivery for event %s: %w", event.ID, err)
		}
		if inserted {
			created = append(created, *delivery)
		}
	}

	m.log.Info().
		Str("webhook_id", webhook.ID.String()).
		Int("deliveries_created", len(created)).
		Msg("retroactive fanout completed")

	return created, nil
}

// matchingWebhookIDs resolves active webhook IDs for an event type through
// the cache, falling back to the repository on miss or cache error.
func (m *FanoutMatcher) matchingWebhookIDs(ctx context.Context, eventType string) ([]uuid.UUID, error) {
	if m.cache != nil {
		if raw, err := m.cache.Get(ctx, webhookMatchKey(eventType)); err != nil {
			m.log.Warn().Err(err).Str("event_type", eventType).Msg("webhook match cache read failed, falling through")
		} else if raw != nil {
			var ids []uuid.UUID
			if err := json.Unmarshal(raw, &ids); err == nil {
				return ids, nil
			}
		}
	}

	webhooks, err := m.webhookRepo.ListActiveByEventType(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("list active webhooks for type %q: %w", eventType, err)
	}

	ids := make([]uuid.UUID, 0, len(webhooks))
	for _, w := range webhooks {
		ids = append(ids, w.ID)
	}

	if m.cache != nil {
		if raw, err := json.Marshal(ids); err == nil {
			if err := m.cache.Set(ctx, webhookMatchKey(eventType), raw, m.cacheTTL); err != nil {
				m.log.Warn().Err(err).Str("event_type", eventType).Msg("webhook match cache write failed")
			}
		}
	}

	return ids, nil
}
