package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeliveryServiceImpl implements ports.DeliveryService.
type DeliveryServiceImpl struct {
	deliveryRepo ports.DeliveryRepository
	eventRepo    ports.EventRepository
	cache        ports.Cache // nil disables stats caching
	statsTTL     time.Duration
	log          zerolog.Logger
}

// NewDeliveryService creates a new DeliveryServiceImpl. cache may be nil.
func NewDeliveryService(
	deliveryRepo ports.DeliveryRepository,
	eventRepo ports.EventRepository,
	cache ports.Cache,
	statsTTL time.Duration,
	log zerolog.Logger,
) *DeliveryServiceImpl {
	return &DeliveryServiceImpl{
		deliveryRepo: deliveryRepo,
		eventRepo:    eventRepo,
		cache:        cache,
		statsTTL:     statsTTL,
		log:          log,
	}
}

// Get returns a delivery by ID.
func (s *DeliveryServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	delivery, err := s.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get delivery: %w", err))
	}
	if delivery == nil {
		return nil, apperror.ErrDeliveryNotFound()
	}
	return delivery, nil
}

// List returns deliveries matching the filter with the total count.
func (s *DeliveryServiceImpl) List(ctx context.Context, params ports.DeliveryListParams) ([]domain.Delivery, int64, error) {
	deliveries, total, err := s.deliveryRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list deliveries: %w", err))
	}
	return deliveries, total, nil
}

// Retry re-queues a delivery with a fresh retry budget. The reset is
// unconditional: a delivered delivery can be re-sent, a failed one reopened.
func (s *DeliveryServiceImpl) Retry(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	delivery.ResetForManualRetry()
	if err := s.deliveryRepo.Update(ctx, delivery); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("reset delivery for retry: %w", err))
	}

	// The parent event may have settled as failed; it is in flight again.
	if err := s.eventRepo.UpdateStatus(ctx, delivery.EventID, domain.EventStatusProcessing, nil); err != nil {
		s.log.Warn().Err(err).
			Str("event_id", delivery.EventID.String()).
			Msg("failed to move event back to processing after manual retry")
	}

	s.log.Info().Str("delivery_id", id.String()).Msg("delivery re-queued manually")
	return delivery, nil
}

// Stats returns delivery counts by status, read through the cache when present.
func (s *DeliveryServiceImpl) Stats(ctx context.Context) (map[domain.DeliveryStatus]int64, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKeyDeliveryStats); err != nil {
			s.log.Warn().Err(err).Msg("delivery stats cache read failed, falling through")
		} else if raw != nil {
			var counts map[domain.DeliveryStatus]int64
			if err := json.Unmarshal(raw, &counts); err == nil {
				return counts, nil
			}
		}
	}

	counts, err := s.deliveryRepo.CountByStatus(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("count deliveries by status: %w", err))
	}

	if s.cache != nil {
		if raw, err := json.Marshal(counts); err == nil {
			if err := s.cache.Set(ctx, cacheKeyDeliveryStats, raw, s.statsTTL); err != nil {
				s.log.Warn().Err(err).Msg("delivery stats cache write failed")
			}
		}
	}
	return counts, nil
}
