package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.Event
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[uuid.UUID]*domain.Event)}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events {
		if existing.IdempotencyKey == event.IdempotencyKey {
			return ports.ErrDuplicateIdempotencyKey
		}
	}
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *inMemoryEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEventRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Event
	for _, e := range r.events {
		if params.Status != nil && e.Status != *params.Status {
			continue
		}
		if params.EventType != nil && e.EventType != *params.EventType {
			continue
		}
		matched = append(matched, *e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, params.Limit, params.Offset), total, nil
}

func (r *inMemoryEventRepo) ListPendingByTypes(ctx context.Context, types []string) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}
	var matched []domain.Event
	for _, e := range r.events {
		if e.Status != domain.EventStatusPending {
			continue
		}
		if _, ok := typeSet[e.EventType]; !ok {
			continue
		}
		matched = append(matched, *e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (r *inMemoryEventRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil
	}
	e.Status = status
	e.LastError = lastError
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryEventRepo) CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.EventStatus]int64)
	for _, e := range r.events {
		counts[e.Status]++
	}
	return counts, nil
}

// --- In-Memory Webhook Repo ---

type inMemoryWebhookRepo struct {
	mu       sync.RWMutex
	webhooks map[uuid.UUID]*domain.Webhook
}

func newInMemoryWebhookRepo() *inMemoryWebhookRepo {
	return &inMemoryWebhookRepo{webhooks: make(map[uuid.UUID]*domain.Webhook)}
}

func (r *inMemoryWebhookRepo) Create(ctx context.Context, webhook *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *webhook
	r.webhooks[webhook.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.webhooks[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWebhookRepo) List(ctx context.Context, params ports.WebhookListParams) ([]domain.Webhook, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Webhook
	for _, w := range r.webhooks {
		if params.ClientID != "" && w.ClientID != params.ClientID {
			continue
		}
		if params.IsActive != nil && w.IsActive != *params.IsActive {
			continue
		}
		matched = append(matched, *w)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, params.Limit, params.Offset), total, nil
}

func (r *inMemoryWebhookRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Webhook
	for _, w := range r.webhooks {
		if w.IsActive && w.SubscribesTo(eventType) {
			matched = append(matched, *w)
		}
	}
	return matched, nil
}

func (r *inMemoryWebhookRepo) Update(ctx context.Context, webhook *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *webhook
	r.webhooks[webhook.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.webhooks[id]; !ok {
		return false, nil
	}
	delete(r.webhooks, id)
	return true, nil
}

// --- In-Memory Delivery Repo ---

type inMemoryDeliveryRepo struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]*domain.Delivery
}

func newInMemoryDeliveryRepo() *inMemoryDeliveryRepo {
	return &inMemoryDeliveryRepo{deliveries: make(map[uuid.UUID]*domain.Delivery)}
}

func (r *inMemoryDeliveryRepo) Create(ctx context.Context, delivery *domain.Delivery) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.deliveries {
		if existing.EventID == delivery.EventID && existing.WebhookID == delivery.WebhookID {
			return false, nil
		}
	}
	cp := *delivery
	r.deliveries[delivery.ID] = &cp
	return true, nil
}

func (r *inMemoryDeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryDeliveryRepo) List(ctx context.Context, params ports.DeliveryListParams) ([]domain.Delivery, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Delivery
	for _, d := range r.deliveries {
		if params.Status != nil && d.Status != *params.Status {
			continue
		}
		if params.EventID != nil && d.EventID != *params.EventID {
			continue
		}
		if params.WebhookID != nil && d.WebhookID != *params.WebhookID {
			continue
		}
		matched = append(matched, *d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	return paginate(matched, params.Limit, params.Offset), total, nil
}

func (r *inMemoryDeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Delivery
	for _, d := range r.deliveries {
		if d.EventID == eventID {
			matched = append(matched, *d)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (r *inMemoryDeliveryRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Delivery
	for _, d := range r.deliveries {
		if d.Status != domain.DeliveryStatusPending {
			continue
		}
		if d.ClaimedUntil != nil && d.ClaimedUntil.After(now) {
			continue
		}
		matched = append(matched, *d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *inMemoryDeliveryRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []domain.Delivery
	for _, d := range r.deliveries {
		if d.Status != domain.DeliveryStatusRetrying {
			continue
		}
		if d.NextRetryAt == nil || d.NextRetryAt.After(now) {
			continue
		}
		if d.ClaimedUntil != nil && d.ClaimedUntil.After(now) {
			continue
		}
		matched = append(matched, *d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].NextRetryAt.Before(*matched[j].NextRetryAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *inMemoryDeliveryRepo) Claim(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return false, nil
	}
	if d.Status != domain.DeliveryStatusPending && d.Status != domain.DeliveryStatusRetrying {
		return false, nil
	}
	if d.ClaimedUntil != nil && d.ClaimedUntil.After(now) {
		return false, nil
	}
	lease := leaseUntil
	d.ClaimedUntil = &lease
	return true, nil
}

func (r *inMemoryDeliveryRepo) Update(ctx context.Context, delivery *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *delivery
	r.deliveries[delivery.ID] = &cp
	return nil
}

func (r *inMemoryDeliveryRepo) CountByStatus(ctx context.Context) (map[domain.DeliveryStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.DeliveryStatus]int64)
	for _, d := range r.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

func (r *inMemoryDeliveryRepo) CountByStatusForEvent(ctx context.Context, eventID uuid.UUID) (map[domain.DeliveryStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.DeliveryStatus]int64)
	for _, d := range r.deliveries {
		if d.EventID == eventID {
			counts[d.Status]++
		}
	}
	return counts, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
