package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/internal/app"
	"basegraph.app/trackersync/internal/http/middleware"
	httprouter "basegraph.app/trackersync/internal/http/router"
	"basegraph.app/trackersync/internal/service"
	"basegraph.app/trackersync/internal/webhook"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	rt, err := app.Start(ctx, config.ServiceTypeServer, app.Options{
		Telemetry:     true,
		Redis:         true,
		TolerateRedis: true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "server startup failed", "error", err)
		os.Exit(1)
	}
	cfg := rt.Config
	slog.InfoContext(ctx, "trackersync server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	// Deliveries admitted while Redis is down stay pending until the sweeper
	// re-enqueues them.
	dedup := webhook.NewRedisDeduplicator(rt.Redis, cfg.Webhook.DedupTTL)
	services := service.NewServices(rt.Stores, service.NewTxRunner(rt.DB), rt.Producer, dedup, service.IngestConfig{
		Fields:        rt.Fields(),
		DedupFailOpen: cfg.Webhook.DedupFailOpen,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, services),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := app.WaitForSignal()
	slog.InfoContext(ctx, "shutting down...", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	slog.InfoContext(shutdownCtx, "shutdown complete")
	rt.Close(shutdownCtx)
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		WebhookSecret:   []byte(cfg.Webhook.Secret),
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		TraceHeaderName: cfg.Queue.TraceHeaderName,
		AdminAPIKey:     cfg.AdminAPIKey,
	})

	return router
}

const banner = `
████████╗██████╗  █████╗  ██████╗██╗  ██╗███████╗██████╗ ███████╗██╗   ██╗███╗   ██╗ ██████╗
╚══██╔══╝██╔══██╗██╔══██╗██╔════╝██║ ██╔╝██╔════╝██╔══██╗██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
   ██║   ██████╔╝███████║██║     █████╔╝ █████╗  ██████╔╝███████╗ ╚████╔╝ ██╔██╗ ██║██║
   ██║   ██╔══██╗██╔══██║██║     ██╔═██╗ ██╔══╝  ██╔══██╗╚════██║  ╚██╔╝  ██║╚██╗██║██║
   ██║   ██║  ██║██║  ██║╚██████╗██║  ██╗███████╗██║  ██║███████║   ██║   ██║ ╚████║╚██████╗
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
                                        server
`
