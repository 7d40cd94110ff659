package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/internal/core/ports/mocks"
	"webhook-relay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type eventTestDeps struct {
	svc          *EventServiceImpl
	eventRepo    *mocks.MockEventRepository
	webhookRepo  *mocks.MockWebhookRepository
	deliveryRepo *mocks.MockDeliveryRepository
	cache        *mocks.MockCache
	ctrl         *gomock.Controller
}

func setupEventService(t *testing.T, withCache bool) *eventTestDeps {
	ctrl := gomock.NewController(t)
	d := &eventTestDeps{
		eventRepo:    mocks.NewMockEventRepository(ctrl),
		webhookRepo:  mocks.NewMockWebhookRepository(ctrl),
		deliveryRepo: mocks.NewMockDeliveryRepository(ctrl),
		ctrl:         ctrl,
	}
	var cache ports.Cache
	if withCache {
		d.cache = mocks.NewMockCache(ctrl)
		cache = d.cache
	}
	fanout := NewFanoutMatcher(d.eventRepo, d.webhookRepo, d.deliveryRepo, nil, 5*time.Minute, zerolog.Nop())
	d.svc = NewEventService(d.eventRepo, d.deliveryRepo, fanout, cache, time.Minute, zerolog.Nop())
	return d
}

// ==================== Submit Tests ====================

func TestEventService_Submit_Success(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payload := []byte(`{"order_id":"ORD-1"}`)
	hooks := []domain.Webhook{
		{ID: uuid.New(), IsActive: true},
		{ID: uuid.New(), IsActive: true},
	}

	d.eventRepo.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.Event) error {
			assert.Equal(t, "order.created", e.EventType)
			assert.Equal(t, "key-1", e.IdempotencyKey)
			assert.Equal(t, domain.EventStatusPending, e.Status)
			return nil
		})
	d.webhookRepo.EXPECT().ListActiveByEventType(ctx, "order.created").Return(hooks, nil)
	d.deliveryRepo.EXPECT().Create(ctx, gomock.Any()).Return(true, nil).Times(2)

	result, err := d.svc.Submit(ctx, "order.created", payload, "key-1")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, 2, result.DeliveriesCreated)
	assert.Equal(t, json.RawMessage(payload), result.Event.Payload)
}

func TestEventService_Submit_DuplicateKey(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	existing := testEvent("order.created")
	existing.IdempotencyKey = "key-1"

	d.eventRepo.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(existing, nil)

	result, err := d.svc.Submit(ctx, "order.created", []byte(`{"n":2}`), "key-1")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, existing.ID, result.Event.ID)
	assert.Zero(t, result.DeliveriesCreated)
}

func TestEventService_Submit_DuplicateRaceOnInsert(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	winner := testEvent("order.created")
	winner.IdempotencyKey = "key-1"

	d.eventRepo.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(nil, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).Return(ports.ErrDuplicateIdempotencyKey)
	d.eventRepo.EXPECT().GetByIdempotencyKey(ctx, "key-1").Return(winner, nil)

	result, err := d.svc.Submit(ctx, "order.created", []byte(`{"n":1}`), "key-1")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, winner.ID, result.Event.ID)
}

func TestEventService_Submit_GeneratesKeyWhenAbsent(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.eventRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, e *domain.Event) error {
			assert.NotEmpty(t, e.IdempotencyKey)
			return nil
		})
	d.webhookRepo.EXPECT().ListActiveByEventType(ctx, "order.created").Return(nil, nil)

	result, err := d.svc.Submit(ctx, "order.created", []byte(`{}`), "")
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Zero(t, result.DeliveriesCreated)
}

func TestEventService_Submit_RejectsInvalidInput(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()

	_, err := d.svc.Submit(ctx, "", []byte(`{}`), "")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)

	_, err = d.svc.Submit(ctx, "order.created", []byte(`not-json`), "")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)

	_, err = d.svc.Submit(ctx, "order.created", nil, "")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
}

// ==================== Get / List / Stats Tests ====================

func TestEventService_Get_Success(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := testEvent("order.created")
	deliveries := []domain.Delivery{*domain.NewDelivery(event.ID, uuid.New())}

	d.eventRepo.EXPECT().GetByID(ctx, event.ID).Return(event, nil)
	d.deliveryRepo.EXPECT().ListByEvent(ctx, event.ID).Return(deliveries, nil)

	got, dels, err := d.svc.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
	assert.Len(t, dels, 1)
}

func TestEventService_Get_NotFound(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.eventRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, _, err := d.svc.Get(ctx, id)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "EVT_001", appErr.Code)
}

func TestEventService_List_PassesParams(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	status := domain.EventStatusCompleted
	params := ports.EventListParams{Status: &status, Limit: 20, Offset: 40}

	d.eventRepo.EXPECT().List(ctx, params).Return([]domain.Event{*testEvent("a.b")}, int64(41), nil)

	events, total, err := d.svc.List(ctx, params)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int64(41), total)
}

func TestEventService_Stats_CacheMissThenHit(t *testing.T) {
	d := setupEventService(t, true)
	defer d.ctrl.Finish()

	ctx := context.Background()
	counts := map[domain.EventStatus]int64{
		domain.EventStatusPending:   3,
		domain.EventStatusCompleted: 7,
	}

	d.cache.EXPECT().Get(ctx, "stats:events").Return(nil, nil)
	d.eventRepo.EXPECT().CountByStatus(ctx).Return(counts, nil)
	d.cache.EXPECT().Set(ctx, "stats:events", gomock.Any(), time.Minute).Return(nil)

	got, err := d.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, got)

	raw, err := json.Marshal(counts)
	require.NoError(t, err)
	d.cache.EXPECT().Get(ctx, "stats:events").Return(raw, nil)

	got, err = d.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestEventService_Stats_RepoError(t *testing.T) {
	d := setupEventService(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.eventRepo.EXPECT().CountByStatus(ctx).Return(nil, errors.New("db down"))

	_, err := d.svc.Stats(ctx)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SYS_001", appErr.Code)
}
