package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventServiceImpl implements ports.EventService.
type EventServiceImpl struct {
	eventRepo    ports.EventRepository
	deliveryRepo ports.DeliveryRepository
	fanout       *FanoutMatcher
	cache        ports.Cache // nil disables stats caching
	statsTTL     time.Duration
	log          zerolog.Logger
}

// NewEventService creates a new EventServiceImpl. cache may be nil.
func NewEventService(
	eventRepo ports.EventRepository,
	deliveryRepo ports.DeliveryRepository,
	fanout *FanoutMatcher,
	cache ports.Cache,
	statsTTL time.Duration,
	log zerolog.Logger,
) *EventServiceImpl {
	return &EventServiceImpl{
		eventRepo:    eventRepo,
		deliveryRepo: deliveryRepo,
		fanout:       fanout,
		cache:        cache,
		statsTTL:     statsTTL,
		log:          log,
	}
}

// Submit accepts an event, enforces idempotency and fans out deliveries to
// matching active webhooks before returning.
func (s *EventServiceImpl) Submit(ctx context.Context, eventType string, payload []byte, idempotencyKey string) (*ports.SubmitResult, error) {
	if eventType == "" {
		return nil, apperror.Validation("eventType is required")
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, apperror.Validation("payload must be a valid JSON document")
	}

	if idempotencyKey != "" {
		existing, err := s.eventRepo.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("idempotency lookup: %w", err))
		}
		if existing != nil {
			s.log.Info().
				Str("event_id", existing.ID.String()).
				Str("idempotency_key", idempotencyKey).
				Msg("duplicate event submission")
			return &ports.SubmitResult{Event: existing, IsDuplicate: true}, nil
		}
	}

	key := idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	now := time.Now().UTC()
	event := &domain.Event{
		ID:             uuid.New(),
		EventType:      eventType,
		Payload:        json.RawMessage(payload),
		IdempotencyKey: key,
		Status:         domain.EventStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		// Concurrent submissions racing on the same key: the unique
		// constraint rejects the loser, which returns the winner's event.
		if errors.Is(err, ports.ErrDuplicateIdempotencyKey) {
			existing, lookupErr := s.eventRepo.GetByIdempotencyKey(ctx, key)
			if lookupErr != nil || existing == nil {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("idempotency race lookup: %w", lookupErr))
			}
			return &ports.SubmitResult{Event: existing, IsDuplicate: true}, nil
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create event: %w", err))
	}

	deliveries, err := s.fanout.MatchAndCreate(ctx, event)
	if err != nil {
		// The event is persisted; deliveries created so far stand. Fan-out
		// is idempotent, so a retroactive match can heal the remainder.
		return nil, apperror.InternalError(fmt.Errorf("fanout for event %s: %w", event.ID, err))
	}

	s.log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", eventType).
		Int("deliveries_created", len(deliveries)).
		Msg("event accepted")

	return &ports.SubmitResult{Event: event, DeliveriesCreated: len(deliveries)}, nil
}

// Get returns an event and its deliveries.
func (s *EventServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Event, []domain.Delivery, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("get event: %w", err))
	}
	if event == nil {
		return nil, nil, apperror.ErrEventNotFound()
	}

	deliveries, err := s.deliveryRepo.ListByEvent(ctx, id)
	if err != nil {
		return nil, nil, apperror.ErrDatabaseError(fmt.Errorf("list deliveries for event: %w", err))
	}
	return event, deliveries, nil
}

// List returns events matching the filter with the total count.
func (s *EventServiceImpl) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	events, total, err := s.eventRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list events: %w", err))
	}
	return events, total, nil
}

// Stats returns event counts by status, read through the cache when present.
func (s *EventServiceImpl) Stats(ctx context.Context) (map[domain.EventStatus]int64, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKeyEventStats); err != nil {
			s.log.Warn().Err(err).Msg("event stats cache read failed, falling through")
		} else if raw != nil {
			var counts map[domain.EventStatus]int64
			if err := json.Unmarshal(raw, &counts); err == nil {
				return counts, nil
			}
		}
	}

	counts, err := s.eventRepo.CountByStatus(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("count events by status: %w", err))
	}

	if s.cache != nil {
		if raw, err := json.Marshal(counts); err == nil {
			if err := s.cache.Set(ctx, cacheKeyEventStats, raw, s.statsTTL); err != nil {
				s.log.Warn().Err(err).Msg("event stats cache write failed")
			}
		}
	}
	return counts, nil
}
