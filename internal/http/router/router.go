package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/internal/http/handler"
	"basegraph.app/trackersync/internal/http/handler/webhook"
	"basegraph.app/trackersync/internal/http/middleware"
	"basegraph.app/trackersync/internal/service"
)

type RouterConfig struct {
	WebhookSecret   []byte
	MaxBodyBytes    int64
	TraceHeaderName string
	AdminAPIKey     string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	jiraHandler := webhook.NewJiraWebhookHandler(services.EventIngest(), webhook.JiraWebhookConfig{
		Secret:       cfg.WebhookSecret,
		MaxBodyBytes: cfg.MaxBodyBytes,
		TraceHeader:  cfg.TraceHeaderName,
	})
	eventHandler := handler.NewWebhookEventHandler(services.WebhookEvents())
	adminKey := middleware.RequireAdminAPIKey(cfg.AdminAPIKey)

	WebhookRouter(router.Group("/webhooks"), jiraHandler, eventHandler, adminKey)

	adminHandler := handler.NewAdminHandler(services.Queue())
	syncStateHandler := handler.NewSyncStateHandler(services.SyncStates())
	AdminRouter(router.Group("/admin", adminKey), adminHandler, syncStateHandler)
}
