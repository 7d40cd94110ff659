package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookRegistryImpl implements ports.WebhookRegistry.
type WebhookRegistryImpl struct {
	webhookRepo ports.WebhookRepository
	signatures  ports.SignatureService
	fanout      *FanoutMatcher
	cache       ports.Cache // nil disables match-cache invalidation
	log         zerolog.Logger
}

// NewWebhookRegistry creates a new WebhookRegistryImpl. cache may be nil.
func NewWebhookRegistry(
	webhookRepo ports.WebhookRepository,
	signatures ports.SignatureService,
	fanout *FanoutMatcher,
	cache ports.Cache,
	log zerolog.Logger,
) *WebhookRegistryImpl {
	return &WebhookRegistryImpl{
		webhookRepo: webhookRepo,
		signatures:  signatures,
		fanout:      fanout,
		cache:       cache,
		log:         log,
	}
}

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ErrInvalidWebhookURL()
	}
	return nil
}

// Create registers a webhook, generates its secret and retroactively matches
// pending events of the subscribed types.
func (s *WebhookRegistryImpl) Create(ctx context.Context, input ports.WebhookCreateInput) (*domain.Webhook, error) {
	if input.Name == "" {
		return nil, apperror.Validation("name is required")
	}
	if err := validateTargetURL(input.URL); err != nil {
		return nil, err
	}
	if len(input.EventTypes) == 0 {
		return nil, apperror.ErrEmptyEventTypes()
	}

	secret, err := s.signatures.GenerateSecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}

	policy := domain.DefaultRetryPolicy()
	if input.RetryPolicy != nil {
		policy = input.RetryPolicy.Normalized()
	}

	now := time.Now().UTC()
	webhook := &domain.Webhook{
		ID:          uuid.New(),
		Name:        input.Name,
		URL:         input.URL,
		EventTypes:  input.EventTypes,
		Secret:      secret,
		Headers:     input.Headers,
		IsActive:    true,
		RetryPolicy: policy,
		ClientID:    input.ClientID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsActive != nil {
		webhook.IsActive = *input.IsActive
	}

	if err := s.webhookRepo.Create(ctx, webhook); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create webhook: %w", err))
	}

	s.invalidateMatchCache(ctx, webhook.EventTypes)

	created, err := s.fanout.RetroactiveMatch(ctx, webhook)
	if err != nil {
		s.log.Warn().Err(err).
			Str("webhook_id", webhook.ID.String()).
			Msg("retroactive match failed, pending events remain unmatched")
	} else if len(created) > 0 {
		s.log.Info().
			Str("webhook_id", webhook.ID.String()).
			Int("deliveries_created", len(created)).
			Msg("retroactive match created deliveries")
	}

	return webhook, nil
}

// Get returns a webhook by ID.
func (s *WebhookRegistryImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	webhook, err := s.webhookRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get webhook: %w", err))
	}
	if webhook == nil {
		return nil, apperror.ErrWebhookNotFound()
	}
	return webhook, nil
}

// List returns webhooks matching the filter with the total count.
func (s *WebhookRegistryImpl) List(ctx context.Context, params ports.WebhookListParams) ([]domain.Webhook, int64, error) {
	webhooks, total, err := s.webhookRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list webhooks: %w", err))
	}
	return webhooks, total, nil
}

// Update applies a partial update. Nil fields are left unchanged.
func (s *WebhookRegistryImpl) Update(ctx context.Context, id uuid.UUID, input ports.WebhookUpdateInput) (*domain.Webhook, error) {
	webhook, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Invalidate both the old and new type sets so stale matches don't
	// survive a subscription change.
	staleTypes := webhook.EventTypes

	if input.Name != nil {
		if *input.Name == "" {
			return nil, apperror.Validation("name must not be empty")
		}
		webhook.Name = *input.Name
	}
	if input.URL != nil {
		if err := validateTargetURL(*input.URL); err != nil {
			return nil, err
		}
		webhook.URL = *input.URL
	}
	if input.EventTypes != nil {
		if len(input.EventTypes) == 0 {
			return nil, apperror.ErrEmptyEventTypes()
		}
		webhook.EventTypes = input.EventTypes
	}
	if input.Headers != nil {
		webhook.Headers = input.Headers
	}
	if input.IsActive != nil {
		webhook.IsActive = *input.IsActive
	}
	if input.RetryPolicy != nil {
		webhook.RetryPolicy = input.RetryPolicy.Normalized()
	}
	webhook.UpdatedAt = time.Now().UTC()

	if err := s.webhookRepo.Update(ctx, webhook); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update webhook: %w", err))
	}

	s.invalidateMatchCache(ctx, append(staleTypes, webhook.EventTypes...))
	return webhook, nil
}

// Delete removes a webhook. Existing deliveries keep their webhook reference;
// the dispatcher fails them at attempt time.
func (s *WebhookRegistryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	webhook, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.webhookRepo.Delete(ctx, id)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("delete webhook: %w", err))
	}
	if !deleted {
		return apperror.ErrWebhookNotFound()
	}

	s.invalidateMatchCache(ctx, webhook.EventTypes)
	s.log.Info().Str("webhook_id", id.String()).Msg("webhook deleted")
	return nil
}

// RotateSecret replaces the webhook's signing secret and returns the webhook
// carrying the new secret. In-flight deliveries sign with the new secret on
// their next attempt.
func (s *WebhookRegistryImpl) RotateSecret(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	webhook, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	secret, err := s.signatures.GenerateSecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	webhook.Secret = secret
	webhook.UpdatedAt = time.Now().UTC()

	if err := s.webhookRepo.Update(ctx, webhook); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("rotate webhook secret: %w", err))
	}

	s.log.Info().Str("webhook_id", id.String()).Msg("webhook secret rotated")
	return webhook, nil
}

func (s *WebhookRegistryImpl) invalidateMatchCache(ctx context.Context, eventTypes []string) {
	if s.cache == nil || len(eventTypes) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(eventTypes))
	keys := make([]string, 0, len(eventTypes))
	for _, et := range eventTypes {
		if _, ok := seen[et]; ok {
			continue
		}
		seen[et] = struct{}{}
		keys = append(keys, webhookMatchKey(et))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Msg("webhook match cache invalidation failed")
	}
}
