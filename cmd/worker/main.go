package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/app"
	"basegraph.app/trackersync/internal/crypto"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/processor"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/reconcile"
	"basegraph.app/trackersync/internal/scheduler"
	"basegraph.app/trackersync/internal/service"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
	"basegraph.app/trackersync/internal/worker"
)

// schedulerLockKey is the Postgres advisory lock key that elects the single
// worker replica running the scheduler.
const schedulerLockKey int64 = 0x74726b73796e63

type runner interface {
	Run(ctx context.Context)
	Stop()
}

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	rt, err := app.Start(ctx, config.ServiceTypeWorker, app.Options{Telemetry: true, Redis: true})
	if err != nil {
		slog.ErrorContext(ctx, "worker startup failed", "error", err)
		os.Exit(1)
	}
	cfg := rt.Config
	slog.InfoContext(ctx, "trackersync worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Queue.Group,
		"consumer_name", cfg.Queue.Consumer)

	stores := rt.Stores
	producer := rt.Producer
	redisClient := rt.Redis
	ledger := syncstate.New(stores.SyncStates())
	fields := rt.Fields()

	// Webhook lane: high priority stream first, then the default stream.
	webhookConsumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:    cfg.Queue.WebhookStream,
		Priority:  true,
		Group:     cfg.Queue.Group,
		Consumer:  cfg.Queue.Consumer,
		BatchSize: 10,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create webhook consumer", "error", err)
		os.Exit(1)
	}

	webhookWorker := worker.New(webhookConsumer, worker.Config{
		Name: "webhook",
		Policy: queue.RetryPolicy{
			MaxAttempts: cfg.Retry.WebhookMaxAttempts,
			Base:        cfg.Retry.WebhookBackoffBase,
		},
		Limiter: worker.PerMinute(cfg.Queue.WebhookPerMinute),
		Hooks:   service.WebhookWorkerHooks(stores.WebhookEvents()),
	})

	proc := processor.New(
		stores.WebhookEvents(),
		stores.Sprints(),
		stores.Boards(),
		stores.QueueItems(),
		ledger,
		producer,
		processor.Config{Fields: fields, Lease: cfg.Sweep.ProcessingLease},
	)
	webhookWorker.Register(queue.TaskTypeWebhookEvent, worker.HandlerFunc(proc.Handle))

	runners := []runner{
		worker.NewReclaimer(webhookConsumer, webhookWorker, worker.ReclaimerConfig{
			MinIdle:  cfg.Queue.ReclaimMinIdle,
			Interval: cfg.Queue.ReclaimInterval,
		}),
		worker.NewRetryPromoter(webhookConsumer, cfg.Queue.PromoteInterval),
		worker.NewSweeper(stores.WebhookEvents(), producer, worker.SweeperConfig{
			Interval:        cfg.Sweep.Interval,
			StalePending:    cfg.Sweep.StalePending,
			ProcessingLease: cfg.Sweep.ProcessingLease,
			MaxAutoRetries:  int32(cfg.Retry.WebhookMaxAttempts),
			BatchSize:       int32(cfg.Sweep.BatchSize),
		}),
	}
	workers := []*worker.Worker{webhookWorker}

	// Sync lane needs a Jira credential. Without one the worker still drains
	// webhooks, so local state keeps moving.
	client, err := newTrackerClient(ctx, cfg, stores, fields)
	switch {
	case errors.Is(err, tracker.ErrNoCredential):
		slog.WarnContext(ctx, "no jira credential, sync lane and scheduler disabled", "error", err)
	case err != nil:
		slog.ErrorContext(ctx, "failed to create jira client", "error", err)
		os.Exit(1)
	default:
		syncConsumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
			Stream:    cfg.Queue.SyncStream,
			Group:     cfg.Queue.Group,
			Consumer:  cfg.Queue.Consumer,
			BatchSize: 1,
			Block:     5 * time.Second,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create sync consumer", "error", err)
			os.Exit(1)
		}

		syncWorker := worker.New(syncConsumer, worker.Config{
			Name: "sync",
			Policy: queue.RetryPolicy{
				MaxAttempts: cfg.Retry.SyncMaxAttempts,
				Base:        cfg.Retry.SyncBackoffBase,
			},
			Limiter: worker.PerMinute(cfg.Queue.SyncPerMinute),
		})

		sched := scheduler.New(
			client,
			stores.Boards(),
			stores.Sprints(),
			ledger,
			producer,
			db.NewAdvisoryLock(rt.DB, schedulerLockKey),
			scheduler.Config{
				Tick:            cfg.Scheduler.Tick,
				RefreshInterval: cfg.Scheduler.RefreshInterval,
				CleanupInterval: cfg.Scheduler.CleanupInterval,
				CleanupMaxAge:   cfg.Scheduler.CleanupMaxAge,
				ErrorCooldown:   cfg.Scheduler.ErrorCooldown,
			},
		)

		reconcile.New(
			client,
			stores.QueueItems(),
			stores.Sprints(),
			ledger,
			producer,
			sched,
			reconcile.Config{Strategies: strategies(cfg.Conflicts)},
		).Register(syncWorker)

		workers = append(workers, syncWorker)
		runners = append(runners,
			worker.NewReclaimer(syncConsumer, syncWorker, worker.ReclaimerConfig{
				MinIdle:  cfg.Queue.ReclaimMinIdle,
				Interval: cfg.Queue.ReclaimInterval,
			}),
			worker.NewRetryPromoter(syncConsumer, cfg.Queue.PromoteInterval),
			sched,
		)
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "worker stopped with error", "error", err)
			}
		}()
	}
	for _, r := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	slog.InfoContext(ctx, "worker initialized and running", "workers", len(workers), "background_loops", len(runners))

	sig := app.WaitForSignal()
	slog.InfoContext(ctx, "shutting down worker...", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Background loops first (quick), then workers which may be mid-task.
	for _, r := range runners {
		r.Stop()
	}
	for _, w := range workers {
		w.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-done:
	}

	slog.InfoContext(ctx, "worker shutdown complete")
	rt.Close(shutdownCtx)
}

func newTrackerClient(ctx context.Context, cfg config.Config, stores *store.Stores, fields jira.FieldConfig) (*tracker.HTTPClient, error) {
	var creds store.CredentialStore
	if len(cfg.Tracker.EncryptionKey) > 0 {
		codec, err := crypto.NewAEADCodec(cfg.Tracker.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("credential codec: %w", err)
		}
		creds = stores.Credentials(codec)
	}

	cred, err := tracker.ResolveCredential(ctx, cfg.Tracker, creds)
	if err != nil {
		return nil, err
	}

	return tracker.NewHTTPClient(tracker.Options{
		Credential:    cred,
		Fields:        fields,
		Timeout:       cfg.Tracker.Timeout,
		RatePerMinute: cfg.Tracker.RatePerMinute,
	})
}

func strategies(c config.ConflictConfig) map[model.EntityType]model.ResolutionStrategy {
	return map[model.EntityType]model.ResolutionStrategy{
		model.EntityTypeSprint:  model.ResolutionStrategy(c.Sprint),
		model.EntityTypeIssue:   model.ResolutionStrategy(c.Issue),
		model.EntityTypeProject: model.ResolutionStrategy(c.Project),
		model.EntityTypeBoard:   model.ResolutionStrategy(c.Board),
	}
}

const banner = `
████████╗██████╗  █████╗  ██████╗██╗  ██╗███████╗██████╗ ███████╗██╗   ██╗███╗   ██╗ ██████╗
╚══██╔══╝██╔══██╗██╔══██╗██╔════╝██║ ██╔╝██╔════╝██╔══██╗██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
   ██║   ██████╔╝███████║██║     █████╔╝ █████╗  ██████╔╝███████╗ ╚████╔╝ ██╔██╗ ██║██║
   ██║   ██╔══██╗██╔══██║██║     ██╔═██╗ ██╔══╝  ██╔══██╗╚════██║  ╚██╔╝  ██║╚██╗██║██║
   ██║   ██║  ██║██║  ██║╚██████╗██║  ██╗███████╗██║  ██║███████║   ██║   ██║ ╚████║╚██████╗
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
                                        worker
`
