package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/http/dto"
	"basegraph.app/trackersync/internal/service"
	"basegraph.app/trackersync/internal/webhook"
)

type JiraWebhookConfig struct {
	Secret       []byte
	MaxBodyBytes int64
	TraceHeader  string
}

type JiraWebhookHandler struct {
	eventIngest service.EventIngestService
	cfg         JiraWebhookConfig
}

func NewJiraWebhookHandler(eventIngest service.EventIngestService, cfg JiraWebhookConfig) *JiraWebhookHandler {
	return &JiraWebhookHandler{
		eventIngest: eventIngest,
		cfg:         cfg,
	}
}

// HandleEvent admits one Jira delivery. The signature is checked against the
// raw bytes before anything parses them.
func (h *JiraWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Request.ContentLength > h.cfg.MaxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !webhook.Verify(body, c.GetHeader(webhook.SignatureHeader), h.cfg.Secret) {
		slog.WarnContext(ctx, "rejected jira webhook with invalid signature",
			"user_agent", c.Request.UserAgent(),
			"client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	params := service.EventIngestParams{
		Body:       body,
		DeliveryID: c.GetHeader(webhook.IdentifierHeader),
		UserAgent:  c.Request.UserAgent(),
	}
	if traceID := h.traceID(c); traceID != "" {
		params.TraceID = &traceID
	}

	result, err := h.eventIngest.Ingest(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		case errors.Is(err, webhook.ErrDedupUnavailable):
			slog.ErrorContext(ctx, "dedup store unavailable, rejecting delivery", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
		default:
			slog.ErrorContext(ctx, "failed to ingest jira webhook", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		}
		return
	}

	if result.Status == service.IngestStatusDuplicate {
		c.JSON(http.StatusOK, dto.WebhookReceivedResponse{
			Status:  string(service.IngestStatusDuplicate),
			EventID: result.EventID,
		})
		return
	}

	processingStatus := "queued"
	if !result.Enqueued {
		processingStatus = "pending"
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		WebhookEventID: &result.Event.ID,
		EventID:        &result.EventID,
		EventType:      &result.EventType,
	})
	slog.InfoContext(ctx, "jira webhook received",
		"processing_status", processingStatus,
		"user_agent", c.Request.UserAgent())

	c.JSON(http.StatusOK, dto.WebhookReceivedResponse{
		Status:           string(service.IngestStatusReceived),
		EventID:          result.EventID,
		EventType:        result.EventType,
		ProcessingStatus: processingStatus,
	})
}

func (h *JiraWebhookHandler) traceID(c *gin.Context) string {
	if h.cfg.TraceHeader != "" {
		if v := c.GetHeader(h.cfg.TraceHeader); v != "" {
			return v
		}
	}
	return logger.TraceID(c.Request.Context())
}
