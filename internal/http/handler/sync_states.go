package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/internal/http/dto"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/service"
)

const (
	defaultSyncStateLimit = 50
	maxSyncStateLimit     = 500
)

type SyncStateHandler struct {
	service service.SyncStateService
}

func NewSyncStateHandler(service service.SyncStateService) *SyncStateHandler {
	return &SyncStateHandler{service: service}
}

// List serves GET /admin/sync-states?filter=pending|failed|conflicts&limit=n.
func (h *SyncStateHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := service.SyncStateFilter(c.DefaultQuery("filter", string(service.SyncStateFilterConflicts)))
	limit := defaultSyncStateLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSyncStateLimit)
	}

	rows, err := h.service.List(ctx, filter, int32(limit))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSyncFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "filter must be pending, failed or conflicts"})
			return
		}
		slog.ErrorContext(ctx, "failed to list sync states", "error", err, "filter", filter)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sync states"})
		return
	}
	if rows == nil {
		rows = []model.SyncState{}
	}

	c.JSON(http.StatusOK, dto.SyncStateListResponse{Filter: string(filter), Count: len(rows), Items: rows})
}

func (h *SyncStateHandler) Get(c *gin.Context) {
	entityType, entityID, ok := entityParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	row, err := h.service.Get(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, service.ErrSyncStateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync state not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to fetch sync state", "error", err, "entity_type", entityType, "entity_id", entityID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sync state"})
		return
	}

	c.JSON(http.StatusOK, row)
}

func (h *SyncStateHandler) Resolve(c *gin.Context) {
	entityType, entityID, ok := entityParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	row, err := h.service.ResolveConflict(ctx, entityType, entityID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncStateNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "sync state not found"})
		case errors.Is(err, service.ErrNoConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "no unresolved conflict"})
		default:
			slog.ErrorContext(ctx, "failed to resolve conflict", "error", err, "entity_type", entityType, "entity_id", entityID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve conflict"})
		}
		return
	}

	slog.InfoContext(ctx, "sync conflict resolved", "entity_type", entityType, "entity_id", entityID)
	c.JSON(http.StatusOK, row)
}

func entityParams(c *gin.Context) (model.EntityType, string, bool) {
	entityType := model.EntityType(c.Param("entity_type"))
	if !entityType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return "", "", false
	}
	return entityType, c.Param("entity_id"), true
}
