package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/internal/http/dto"
	"basegraph.app/trackersync/internal/service"
)

type WebhookEventHandler struct {
	service service.WebhookEventService
}

func NewWebhookEventHandler(service service.WebhookEventService) *WebhookEventHandler {
	return &WebhookEventHandler{service: service}
}

func (h *WebhookEventHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	eventID := c.Param("event_id")

	ev, err := h.service.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to fetch webhook event", "error", err, "event_id", eventID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch event"})
		return
	}

	c.JSON(http.StatusOK, dto.NewWebhookEventResponse(ev))
}

func (h *WebhookEventHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute webhook stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *WebhookEventHandler) Retry(c *gin.Context) {
	ctx := c.Request.Context()
	eventID := c.Param("event_id")

	res, err := h.service.Retry(ctx, eventID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, service.ErrRetryNotAllowed):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to retry webhook event", "error", err, "event_id", eventID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry event"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.RetryResponse{
		Status:     "retry_scheduled",
		EventID:    res.Event.EventID,
		RetryCount: res.Event.RetryCount,
		Enqueued:   res.Enqueued,
	})
}
