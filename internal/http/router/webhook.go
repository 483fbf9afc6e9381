package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/trackersync/internal/http/handler"
	"basegraph.app/trackersync/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, jira *webhook.JiraWebhookHandler, events *handler.WebhookEventHandler, adminKey gin.HandlerFunc) {
	router.POST("/jira", jira.HandleEvent)
	router.GET("/events/:event_id", events.Get)
	router.POST("/events/:event_id/retry", adminKey, events.Retry)
	router.GET("/stats", events.Stats)
	router.GET("/schema", handler.Schema)
}

func AdminRouter(router *gin.RouterGroup, admin *handler.AdminHandler, states *handler.SyncStateHandler) {
	router.POST("/refresh", admin.Refresh)
	router.GET("/sync-states", states.List)
	router.GET("/sync-states/:entity_type/:entity_id", states.Get)
	router.POST("/sync-states/:entity_type/:entity_id/resolve", states.Resolve)
}
