// Package app is the process bootstrap shared by the binaries under cmd/.
// It loads configuration, brings up telemetry and logging, and opens the
// Postgres and Redis connections in the order the rest of the code expects.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/common/otel"
	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
)

type Options struct {
	Telemetry bool
	Redis     bool
	// TolerateRedis keeps startup going when the Redis ping fails.
	TolerateRedis bool
}

type Runtime struct {
	Config   config.Config
	DB       *db.DB
	Stores   *store.Stores
	Redis    *redis.Client
	Producer queue.Producer

	telemetry *otel.Telemetry
}

func Start(ctx context.Context, serviceType config.ServiceType, opts Options) (*Runtime, error) {
	cfg, err := config.Load(serviceType)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	rt := &Runtime{Config: cfg}

	// Telemetry comes first: the logger bridges into its provider.
	if opts.Telemetry {
		rt.telemetry, err = otel.Setup(ctx, cfg.OTel)
		if err != nil {
			return nil, fmt.Errorf("initializing otel: %w", err)
		}
	}
	logger.Setup(cfg)

	if rt.telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint, "sample_ratio", cfg.OTel.SampleRatio)
	}

	if err := id.Init(cfg.NodeID); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}

	rt.DB, err = db.New(ctx, cfg.DB)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	rt.Stores = store.NewStores(rt.DB.Queries())
	slog.InfoContext(ctx, "database connected")

	if opts.Redis {
		if err := rt.connectRedis(ctx, opts.TolerateRedis); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	return rt, nil
}

func (r *Runtime) connectRedis(ctx context.Context, tolerate bool) error {
	redisOpts, err := redis.ParseURL(r.Config.Queue.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}

	r.Redis = redis.NewClient(redisOpts)
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		if !tolerate {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		slog.WarnContext(ctx, "redis unreachable at startup", "error", err)
	} else {
		slog.InfoContext(ctx, "redis connected",
			"webhook_stream", r.Config.Queue.WebhookStream,
			"sync_stream", r.Config.Queue.SyncStream)
	}

	r.Producer = queue.NewRedisProducer(r.Redis, queue.ProducerConfig{
		WebhookStream: r.Config.Queue.WebhookStream,
		SyncStream:    r.Config.Queue.SyncStream,
		MarkerTTL:     r.Config.Queue.CoalesceMarkerTTL,
	}, slog.Default())
	return nil
}

// Fields is the Jira custom field layout from configuration.
func (r *Runtime) Fields() jira.FieldConfig {
	f := r.Config.Fields
	return jira.FieldConfig{
		StoryPointsFields:     f.StoryPointsFields,
		DisciplineFields:      f.DisciplineFields,
		SprintFields:          f.SprintFields,
		DisciplineFieldPrefix: f.DisciplineFieldPrefix,
	}
}

// Close releases everything Start opened, telemetry last so shutdown logs
// still reach the exporter. Partially started runtimes are fine.
func (r *Runtime) Close(ctx context.Context) {
	// The producer owns the Redis client once it exists.
	switch {
	case r.Producer != nil:
		if err := r.Producer.Close(); err != nil {
			slog.WarnContext(ctx, "producer close error", "error", err)
		}
	case r.Redis != nil:
		if err := r.Redis.Close(); err != nil {
			slog.WarnContext(ctx, "redis close error", "error", err)
		}
	}
	if r.DB != nil {
		r.DB.Close()
	}
	if err := r.telemetry.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "otel shutdown error", "error", err)
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM.
func WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	return <-quit
}
