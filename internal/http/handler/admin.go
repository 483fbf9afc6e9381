package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/internal/http/dto"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/queue"
)

type AdminHandler struct {
	queue queue.Producer
}

func NewAdminHandler(queue queue.Producer) *AdminHandler {
	return &AdminHandler{queue: queue}
}

// Refresh queues a board refresh for the worker fleet. A refresh that is
// already queued absorbs the request.
func (h *AdminHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()

	queued, err := h.queue.Enqueue(ctx, queue.Task{TaskType: queue.TaskTypeBoardRefresh})
	if err != nil {
		slog.ErrorContext(ctx, "failed to queue board refresh", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue refresh"})
		return
	}

	status := "queued"
	if !queued {
		status = "already_queued"
	}
	c.JSON(http.StatusAccepted, dto.RefreshResponse{Status: status})
}

// Schema publishes the JSON schema of the webhook payload sections this
// service reads.
func Schema(c *gin.Context) {
	c.JSON(http.StatusOK, jira.Schema())
}
