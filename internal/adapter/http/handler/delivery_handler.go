package handler

import (
	"webhook-relay/internal/adapter/http/dto"
	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"
	"webhook-relay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeliveryHandler handles delivery inspection and manual retry endpoints.
type DeliveryHandler struct {
	deliverySvc ports.DeliveryService
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(deliverySvc ports.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliverySvc: deliverySvc}
}

// Get handles GET /api/v1/deliveries/:id.
func (h *DeliveryHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid delivery id"))
		return
	}

	delivery, err := h.deliverySvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromDelivery(delivery))
}

// List handles GET /api/v1/deliveries.
func (h *DeliveryHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	params := ports.DeliveryListParams{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.DeliveryStatus(s)
		params.Status = &status
	}
	if s := c.Query("event_id"); s != "" {
		eventID, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid event_id filter"))
			return
		}
		params.EventID = &eventID
	}
	if s := c.Query("webhook_id"); s != "" {
		webhookID, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid webhook_id filter"))
			return
		}
		params.WebhookID = &webhookID
	}

	deliveries, total, err := h.deliverySvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewListResponse(dto.FromDeliveries(deliveries), total, page, pageSize))
}

// Retry handles POST /api/v1/deliveries/:id/retry.
func (h *DeliveryHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid delivery id"))
		return
	}

	delivery, err := h.deliverySvc.Retry(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromDelivery(delivery))
}

// Stats handles GET /api/v1/deliveries/stats/summary.
func (h *DeliveryHandler) Stats(c *gin.Context) {
	counts, err := h.deliverySvc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.DeliveryStatsResponse{
		Pending:   counts[domain.DeliveryStatusPending],
		Retrying:  counts[domain.DeliveryStatusRetrying],
		Delivered: counts[domain.DeliveryStatusDelivered],
		Failed:    counts[domain.DeliveryStatusFailed],
	}
	resp.Total = resp.Pending + resp.Retrying + resp.Delivered + resp.Failed
	response.OK(c, resp)
}
