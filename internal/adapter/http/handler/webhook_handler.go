package handler

import (
	"webhook-relay/internal/adapter/http/dto"
	"webhook-relay/internal/adapter/http/middleware"
	"webhook-relay/internal/core/ports"
	"webhook-relay/pkg/apperror"
	"webhook-relay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles webhook registry endpoints.
type WebhookHandler struct {
	registry ports.WebhookRegistry
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(registry ports.WebhookRegistry) *WebhookHandler {
	return &WebhookHandler{registry: registry}
}

// Create handles POST /api/v1/webhooks. The response is the only place the
// generated secret appears besides rotation.
func (h *WebhookHandler) Create(c *gin.Context) {
	var req dto.WebhookCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	webhook, err := h.registry.Create(c.Request.Context(), ports.WebhookCreateInput{
		Name:        req.Name,
		URL:         req.URL,
		EventTypes:  req.EventTypes,
		ClientID:    c.GetString(middleware.CtxClientID),
		Headers:     req.Headers,
		IsActive:    req.IsActive,
		RetryPolicy: req.RetryPolicy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWebhookWithSecret(webhook))
}

// Get handles GET /api/v1/webhooks/:id.
func (h *WebhookHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	webhook, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWebhook(webhook))
}

// List handles GET /api/v1/webhooks.
func (h *WebhookHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	params := ports.WebhookListParams{
		ClientID: c.Query("client_id"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	if s := c.Query("is_active"); s != "" {
		active := s == "true"
		params.IsActive = &active
	}

	webhooks, total, err := h.registry.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookResponse, len(webhooks))
	for i := range webhooks {
		items[i] = dto.FromWebhook(&webhooks[i])
	}
	response.OK(c, dto.NewListResponse(items, total, page, pageSize))
}

// Update handles PUT /api/v1/webhooks/:id.
func (h *WebhookHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	var req dto.WebhookUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	webhook, err := h.registry.Update(c.Request.Context(), id, ports.WebhookUpdateInput{
		Name:        req.Name,
		URL:         req.URL,
		EventTypes:  req.EventTypes,
		Headers:     req.Headers,
		IsActive:    req.IsActive,
		RetryPolicy: req.RetryPolicy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWebhook(webhook))
}

// Delete handles DELETE /api/v1/webhooks/:id.
func (h *WebhookHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// RotateSecret handles POST /api/v1/webhooks/:id/rotate-secret.
func (h *WebhookHandler) RotateSecret(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid webhook id"))
		return
	}

	webhook, err := h.registry.RotateSecret(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWebhookWithSecret(webhook))
}
