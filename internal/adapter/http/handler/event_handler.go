package handler

import (
	"strconv"

	"webhook-relay/internal/adapter/http/dto"
	"webhook-relay/internal/core/domain"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"
	"webhook-relay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey can carry the idempotency key instead of the body field.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// EventHandler handles event intake and query endpoints.
type EventHandler struct {
	eventSvc ports.EventService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(eventSvc ports.EventService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc}
}

// Submit handles POST /api/v1/events.
func (h *EventHandler) Submit(c *gin.Context) {
	var req dto.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader(HeaderIdempotencyKey)
	}

	result, err := h.eventSvc.Submit(c.Request.Context(), req.EventType, req.Payload, key)
	if err != nil {
		response.Error(c, err)
		return
	}

	body := dto.SubmitEventResponse{
		Event:             dto.FromEvent(result.Event),
		DeliveriesCreated: result.DeliveriesCreated,
		Duplicate:         result.IsDuplicate,
	}
	if result.IsDuplicate {
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}

// Get handles GET /api/v1/events/:id.
func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid event id"))
		return
	}

	event, deliveries, err := h.eventSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EventDetailResponse{
		Event:      dto.FromEvent(event),
		Deliveries: dto.FromDeliveries(deliveries),
	})
}

// List handles GET /api/v1/events.
func (h *EventHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	params := ports.EventListParams{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.EventStatus(s)
		params.Status = &status
	}
	if et := c.Query("event_type"); et != "" {
		params.EventType = &et
	}

	events, total, err := h.eventSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EventResponse, len(events))
	for i := range events {
		items[i] = dto.FromEvent(&events[i])
	}
	response.OK(c, dto.NewListResponse(items, total, page, pageSize))
}

// Stats handles GET /api/v1/events/stats/summary.
func (h *EventHandler) Stats(c *gin.Context) {
	counts, err := h.eventSvc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.EventStatsResponse{
		Pending:    counts[domain.EventStatusPending],
		Processing: counts[domain.EventStatusProcessing],
		Completed:  counts[domain.EventStatusCompleted],
		Failed:     counts[domain.EventStatusFailed],
	}
	resp.Total = resp.Pending + resp.Processing + resp.Completed + resp.Failed
	response.OK(c, resp)
}

// parsePagination reads page/page_size query params with sane bounds.
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
