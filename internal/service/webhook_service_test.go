package service

import (
	"context"
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

type registryTestDeps struct {
	svc          *WebhookRegistryImpl
	eventRepo    *mocks.MockEventRepository
	webhookRepo  *mocks.MockWebhookRepository
	deliveryRepo *mocks.MockDeliveryRepository
	sigSvc       *mocks.MockSignatureService
	cache        *mocks.MockCache
	ctrl         *gomock.Controller
}

func setupRegistry(t *testing.T, withCache bool) *registryTestDeps {
	ctrl := gomock.NewController(t)
	d := &registryTestDeps{
		eventRepo:    mocks.NewMockEventRepository(ctrl),
		webhookRepo:  mocks.NewMockWebhookRepository(ctrl),
		deliveryRepo: mocks.NewMockDeliveryRepository(ctrl),
		sigSvc:       mocks.NewMockSignatureService(ctrl),
		ctrl:         ctrl,
	}
	var cache ports.Cache
	if withCache {
		d.cache = mocks.NewMockCache(ctrl)
		cache = d.cache
	}
	fanout := NewFanoutMatcher(d.eventRepo, d.webhookRepo, d.deliveryRepo, nil, 5*time.Minute, zerolog.Nop())
	d.svc = NewWebhookRegistry(d.webhookRepo, d.sigSvc, fanout, cache, zerolog.Nop())
	return d
}

func validCreateInput() ports.WebhookCreateInput {
	return ports.WebhookCreateInput{
		Name:       "orders-consumer",
		URL:        "https://consumer.example.com/hooks",
		EventTypes: []string{"order.created"},
		ClientID:   "client-1",
	}
}

// ==================== Create Tests ====================

func TestWebhookRegistry_Create_Success(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()

	d.sigSvc.EXPECT().GenerateSecret().Return("aabbcc", nil)
	d.webhookRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, w *domain.Webhook) error {
			assert.Equal(t, "orders-consumer", w.Name)
			assert.Equal(t, "aabbcc", w.Secret)
			assert.True(t, w.IsActive)
			assert.Equal(t, domain.DefaultMaxRetries, w.RetryPolicy.MaxRetries)
			return nil
		})
	d.eventRepo.EXPECT().ListPendingByTypes(ctx, []string{"order.created"}).Return(nil, nil)

	webhook, err := d.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)
	assert.Equal(t, "aabbcc", webhook.Secret)
}

func TestWebhookRegistry_Create_RetroactiveMatch(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	pending := []domain.Event{*testEvent("order.created")}

	d.sigSvc.EXPECT().GenerateSecret().Return("s1", nil)
	d.webhookRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().ListPendingByTypes(ctx, []string{"order.created"}).Return(pending, nil)
	d.deliveryRepo.EXPECT().Create(ctx, gomock.Any()).Return(true, nil)

	webhook, err := d.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)
	assert.NotNil(t, webhook)
}

func TestWebhookRegistry_Create_CustomRetryPolicyNormalized(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	input := validCreateInput()
	input.RetryPolicy = &domain.RetryPolicy{MaxRetries: 2}

	d.sigSvc.EXPECT().GenerateSecret().Return("s1", nil)
	d.webhookRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, w *domain.Webhook) error {
			assert.Equal(t, 2, w.RetryPolicy.MaxRetries)
			assert.Equal(t, domain.DefaultInitialDelayMs, w.RetryPolicy.InitialDelayMs)
			return nil
		})
	d.eventRepo.EXPECT().ListPendingByTypes(ctx, gomock.Any()).Return(nil, nil)

	_, err := d.svc.Create(ctx, input)
	require.NoError(t, err)
}

func TestWebhookRegistry_Create_Validation(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	var appErr *apperror.AppError

	input := validCreateInput()
	input.Name = ""
	_, err := d.svc.Create(ctx, input)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)

	input = validCreateInput()
	input.URL = "ftp://not-http.example.com"
	_, err = d.svc.Create(ctx, input)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WH_002", appErr.Code)

	input = validCreateInput()
	input.EventTypes = nil
	_, err = d.svc.Create(ctx, input)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WH_003", appErr.Code)
}

func TestWebhookRegistry_Create_InvalidatesMatchCache(t *testing.T) {
	d := setupRegistry(t, true)
	defer d.ctrl.Finish()

	ctx := context.Background()
	input := validCreateInput()
	input.EventTypes = []string{"order.created", "order.paid", "order.created"}

	d.sigSvc.EXPECT().GenerateSecret().Return("s1", nil)
	d.webhookRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.cache.EXPECT().Delete(ctx, "webhooks:event:order.created", "webhooks:event:order.paid").Return(nil)
	d.eventRepo.EXPECT().ListPendingByTypes(ctx, gomock.Any()).Return(nil, nil)

	_, err := d.svc.Create(ctx, input)
	require.NoError(t, err)
}

// ==================== Update / Delete Tests ====================

func TestWebhookRegistry_Update_PartialFields(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	existing := &domain.Webhook{
		ID:          uuid.New(),
		Name:        "old-name",
		URL:         "https://old.example.com",
		EventTypes:  []string{"order.created"},
		Secret:      "sec",
		IsActive:    true,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}
	newName := "new-name"
	inactive := false

	d.webhookRepo.EXPECT().GetByID(ctx, existing.ID).Return(existing, nil)
	d.webhookRepo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, w *domain.Webhook) error {
			assert.Equal(t, "new-name", w.Name)
			assert.Equal(t, "https://old.example.com", w.URL)
			assert.False(t, w.IsActive)
			return nil
		})

	updated, err := d.svc.Update(ctx, existing.ID, ports.WebhookUpdateInput{Name: &newName, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "new-name", updated.Name)
}

func TestWebhookRegistry_Update_NotFound(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.webhookRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.Update(ctx, id, ports.WebhookUpdateInput{})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WH_001", appErr.Code)
}

func TestWebhookRegistry_Delete_Success(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	existing := &domain.Webhook{ID: uuid.New(), EventTypes: []string{"order.created"}}

	d.webhookRepo.EXPECT().GetByID(ctx, existing.ID).Return(existing, nil)
	d.webhookRepo.EXPECT().Delete(ctx, existing.ID).Return(true, nil)

	require.NoError(t, d.svc.Delete(ctx, existing.ID))
}

func TestWebhookRegistry_Delete_NotFound(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.webhookRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	err := d.svc.Delete(ctx, id)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "WH_001", appErr.Code)
}

// ==================== RotateSecret Tests ====================

func TestWebhookRegistry_RotateSecret(t *testing.T) {
	d := setupRegistry(t, false)
	defer d.ctrl.Finish()

	ctx := context.Background()
	existing := &domain.Webhook{ID: uuid.New(), Secret: "old-secret", EventTypes: []string{"order.created"}}

	d.webhookRepo.EXPECT().GetByID(ctx, existing.ID).Return(existing, nil)
	d.sigSvc.EXPECT().GenerateSecret().Return("new-secret", nil)
	d.webhookRepo.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, w *domain.Webhook) error {
			assert.Equal(t, "new-secret", w.Secret)
			return nil
		})

	webhook, err := d.svc.RotateSecret(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-secret", webhook.Secret)
}
