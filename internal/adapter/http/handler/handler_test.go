package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webhook-relay/internal/adapter/http/dto"
	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/internal/core/ports/mocks"
	"webhook-relay/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func sampleEvent() *domain.Event {
	return &domain.Event{
		ID:             uuid.New(),
		EventType:      "order.created",
		Payload:        json.RawMessage(`{"order_id":42}`),
		IdempotencyKey: "key-1",
		Status:         domain.EventStatusPending,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func sampleWebhook() *domain.Webhook {
	return &domain.Webhook{
		ID:          uuid.New(),
		Name:        "orders-sink",
		URL:         "https://example.com/hooks",
		EventTypes:  []string{"order.created"},
		Secret:      "whsec_abc123",
		IsActive:    true,
		RetryPolicy: domain.DefaultRetryPolicy(),
		ClientID:    "default",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func sampleDelivery() *domain.Delivery {
	return &domain.Delivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		WebhookID: uuid.New(),
		Status:    domain.DeliveryStatusFailed,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

// --- Event Handler Tests ---

func TestEventSubmit_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	event := sampleEvent()
	mockSvc.EXPECT().
		Submit(gomock.Any(), "order.created", []byte(`{"order_id":42}`), "key-1").
		Return(&ports.SubmitResult{Event: event, DeliveriesCreated: 2}, nil)

	body, _ := json.Marshal(dto.SubmitEventRequest{
		EventType:      "order.created",
		Payload:        json.RawMessage(`{"order_id":42}`),
		IdempotencyKey: "key-1",
	})
	c, w := testContext(t, http.MethodPost, "/api/v1/events", body)

	h.Submit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["deliveries_created"])
	assert.Equal(t, false, data["duplicate"])
	ev := data["event"].(map[string]interface{})
	assert.Equal(t, event.ID.String(), ev["id"])
}

func TestEventSubmit_DuplicateReturnsOK(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	mockSvc.EXPECT().
		Submit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ports.SubmitResult{Event: sampleEvent(), IsDuplicate: true}, nil)

	body, _ := json.Marshal(dto.SubmitEventRequest{
		EventType: "order.created",
		Payload:   json.RawMessage(`{}`),
	})
	c, w := testContext(t, http.MethodPost, "/api/v1/events", body)

	h.Submit(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["duplicate"])
}

func TestEventSubmit_KeyFromHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	mockSvc.EXPECT().
		Submit(gomock.Any(), "order.created", gomock.Any(), "hdr-key").
		Return(&ports.SubmitResult{Event: sampleEvent()}, nil)

	body, _ := json.Marshal(dto.SubmitEventRequest{
		EventType: "order.created",
		Payload:   json.RawMessage(`{}`),
	})
	c, w := testContext(t, http.MethodPost, "/api/v1/events", body)
	c.Request.Header.Set(HeaderIdempotencyKey, "hdr-key")

	h.Submit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestEventSubmit_BindingError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewEventHandler(mocks.NewMockEventService(ctrl))

	c, w := testContext(t, http.MethodPost, "/api/v1/events", []byte(`{}`))

	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VAL_001", resp["error_code"])
}

func TestEventGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	event := sampleEvent()
	deliveries := []domain.Delivery{*sampleDelivery()}
	mockSvc.EXPECT().Get(gomock.Any(), event.ID).Return(event, deliveries, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/events/"+event.ID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: event.ID.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["deliveries"], 1)
}

func TestEventGet_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewEventHandler(mocks.NewMockEventService(ctrl))

	c, w := testContext(t, http.MethodGet, "/api/v1/events/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.Get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	id := uuid.New()
	mockSvc.EXPECT().Get(gomock.Any(), id).Return(nil, nil, apperror.ErrEventNotFound())

	c, w := testContext(t, http.MethodGet, "/api/v1/events/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventList_Filters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	status := domain.EventStatusFailed
	eventType := "order.created"
	mockSvc.EXPECT().
		List(gomock.Any(), ports.EventListParams{
			Status:    &status,
			EventType: &eventType,
			Limit:     10,
			Offset:    10,
		}).
		Return([]domain.Event{*sampleEvent()}, int64(11), nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/events?status=failed&event_type=order.created&page=2&page_size=10", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(11), data["total"])
	assert.Equal(t, float64(2), data["page"])
	assert.Equal(t, float64(2), data["total_pages"])
}

func TestEventStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	h := NewEventHandler(mockSvc)

	mockSvc.EXPECT().Stats(gomock.Any()).Return(map[domain.EventStatus]int64{
		domain.EventStatusPending:   3,
		domain.EventStatusCompleted: 7,
	}, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/events/stats/summary", nil)

	h.Stats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(10), data["total"])
	assert.Equal(t, float64(3), data["pending"])
	assert.Equal(t, float64(7), data["completed"])
}

// --- Webhook Handler Tests ---

func TestWebhookCreate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	webhook := sampleWebhook()
	mockReg.EXPECT().
		Create(gomock.Any(), ports.WebhookCreateInput{
			Name:       "orders-sink",
			URL:        "https://example.com/hooks",
			EventTypes: []string{"order.created"},
			ClientID:   "client-7",
		}).
		Return(webhook, nil)

	body, _ := json.Marshal(dto.WebhookCreateRequest{
		Name:       "orders-sink",
		URL:        "https://example.com/hooks",
		EventTypes: []string{"order.created"},
	})
	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks", body)
	c.Set("client_id", "client-7")

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, webhook.Secret, data["secret"])
}

func TestWebhookCreate_BindingError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWebhookHandler(mocks.NewMockWebhookRegistry(ctrl))

	body, _ := json.Marshal(map[string]any{"name": "x", "url": "ftp://nope", "event_types": []string{"a"}})
	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks", body)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookGet_OmitsSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	webhook := sampleWebhook()
	mockReg.EXPECT().Get(gomock.Any(), webhook.ID).Return(webhook, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/webhooks/"+webhook.ID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: webhook.ID.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	_, hasSecret := data["secret"]
	assert.False(t, hasSecret)
}

func TestWebhookList_ActiveFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	active := true
	mockReg.EXPECT().
		List(gomock.Any(), ports.WebhookListParams{IsActive: &active, Limit: 20, Offset: 0}).
		Return([]domain.Webhook{*sampleWebhook()}, int64(1), nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/webhooks?is_active=true", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookUpdate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	webhook := sampleWebhook()
	name := "renamed"
	mockReg.EXPECT().
		Update(gomock.Any(), webhook.ID, ports.WebhookUpdateInput{Name: &name}).
		Return(webhook, nil)

	body, _ := json.Marshal(dto.WebhookUpdateRequest{Name: &name})
	c, w := testContext(t, http.MethodPut, "/api/v1/webhooks/"+webhook.ID.String(), body)
	c.Params = gin.Params{{Key: "id", Value: webhook.ID.String()}}

	h.Update(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookDelete_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	id := uuid.New()
	mockReg.EXPECT().Delete(gomock.Any(), id).Return(nil)

	c, w := testContext(t, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookDelete_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	id := uuid.New()
	mockReg.EXPECT().Delete(gomock.Any(), id).Return(apperror.ErrWebhookNotFound())

	c, w := testContext(t, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Delete(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookRotateSecret_ReturnsNewSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockWebhookRegistry(ctrl)
	h := NewWebhookHandler(mockReg)

	webhook := sampleWebhook()
	webhook.Secret = "whsec_rotated"
	mockReg.EXPECT().RotateSecret(gomock.Any(), webhook.ID).Return(webhook, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/webhooks/"+webhook.ID.String()+"/rotate-secret", nil)
	c.Params = gin.Params{{Key: "id", Value: webhook.ID.String()}}

	h.RotateSecret(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "whsec_rotated", data["secret"])
}

// --- Delivery Handler Tests ---

func TestDeliveryGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockDeliveryService(ctrl)
	h := NewDeliveryHandler(mockSvc)

	id := uuid.New()
	mockSvc.EXPECT().Get(gomock.Any(), id).Return(nil, apperror.ErrDeliveryNotFound())

	c, w := testContext(t, http.MethodGet, "/api/v1/deliveries/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeliveryList_Filters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockDeliveryService(ctrl)
	h := NewDeliveryHandler(mockSvc)

	status := domain.DeliveryStatusRetrying
	eventID := uuid.New()
	mockSvc.EXPECT().
		List(gomock.Any(), ports.DeliveryListParams{
			Status:  &status,
			EventID: &eventID,
			Limit:   20,
			Offset:  0,
		}).
		Return([]domain.Delivery{*sampleDelivery()}, int64(1), nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/deliveries?status=retrying&event_id="+eventID.String(), nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeliveryList_BadEventIDFilter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewDeliveryHandler(mocks.NewMockDeliveryService(ctrl))

	c, w := testContext(t, http.MethodGet, "/api/v1/deliveries?event_id=nope", nil)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeliveryRetry_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockDeliveryService(ctrl)
	h := NewDeliveryHandler(mockSvc)

	delivery := sampleDelivery()
	delivery.Status = domain.DeliveryStatusPending
	mockSvc.EXPECT().Retry(gomock.Any(), delivery.ID).Return(delivery, nil)

	c, w := testContext(t, http.MethodPost, "/api/v1/deliveries/"+delivery.ID.String()+"/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: delivery.ID.String()}}

	h.Retry(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "pending", data["status"])
}

func TestDeliveryRetry_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockDeliveryService(ctrl)
	h := NewDeliveryHandler(mockSvc)

	id := uuid.New()
	mockSvc.EXPECT().Retry(gomock.Any(), id).
		Return(nil, apperror.ErrDeliveryNotFound())

	c, w := testContext(t, http.MethodPost, "/api/v1/deliveries/"+id.String()+"/retry", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Retry(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeliveryStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockDeliveryService(ctrl)
	h := NewDeliveryHandler(mockSvc)

	mockSvc.EXPECT().Stats(gomock.Any()).Return(map[domain.DeliveryStatus]int64{
		domain.DeliveryStatusDelivered: 9,
		domain.DeliveryStatusFailed:    1,
	}, nil)

	c, w := testContext(t, http.MethodGet, "/api/v1/deliveries/stats/summary", nil)

	h.Stats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(10), data["total"])
}

// --- Health Check Tests ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Ping(ctx context.Context) error { return f.err }
func (f fakeChecker) Name() string                   { return f.name }

func TestHealthCheck_AllHealthy(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/health", nil)

	HealthCheck(fakeChecker{name: "postgresql"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	c, w := testContext(t, http.MethodGet, "/health", nil)

	HealthCheck(
		fakeChecker{name: "postgresql"},
		fakeChecker{name: "redis", err: errors.New("connection refused")},
	)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	redisDep := deps["redis"].(map[string]interface{})
	assert.Equal(t, "unhealthy", redisDep["status"])
}

// --- Router Tests ---

func TestRouter_RequiresAPIKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := SetupRouter(RouterDeps{
		EventSvc:    mocks.NewMockEventService(ctrl),
		WebhookSvc:  mocks.NewMockWebhookRegistry(ctrl),
		DeliverySvc: mocks.NewMockDeliveryService(ctrl),
		APIKey:      "topsecret",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := SetupRouter(RouterDeps{
		EventSvc:    mocks.NewMockEventService(ctrl),
		WebhookSvc:  mocks.NewMockWebhookRegistry(ctrl),
		DeliverySvc: mocks.NewMockDeliveryService(ctrl),
		APIKey:      "topsecret",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthedRouteDispatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := mocks.NewMockEventService(ctrl)
	mockSvc.EXPECT().Stats(gomock.Any()).Return(map[domain.EventStatus]int64{}, nil)

	r := SetupRouter(RouterDeps{
		EventSvc:    mockSvc,
		WebhookSvc:  mocks.NewMockWebhookRegistry(ctrl),
		DeliverySvc: mocks.NewMockDeliveryService(ctrl),
		APIKey:      "topsecret",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stats/summary", nil)
	req.Header.Set("X-API-Key", "topsecret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
