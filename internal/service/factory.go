package service

import (
	"log/slog"

	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/webhook"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	queue    queue.Producer
	dedup    webhook.Deduplicator
	ingest   IngestConfig
}

func NewServices(stores *store.Stores, txRunner TxRunner, queue queue.Producer, dedup webhook.Deduplicator, ingest IngestConfig) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		queue:    queue,
		dedup:    dedup,
		ingest:   ingest,
	}
}

func (s *Services) EventIngest() EventIngestService {
	return NewEventIngestService(s.stores.WebhookEvents(), s.dedup, s.queue, s.ingest, slog.Default())
}

func (s *Services) WebhookEvents() WebhookEventService {
	return NewWebhookEventService(s.stores.WebhookEvents(), s.txRunner, s.queue)
}

// Queue is exposed for the admin refresh trigger.
func (s *Services) Queue() queue.Producer {
	return s.queue
}

func (s *Services) SyncStates() SyncStateService {
	return NewSyncStateService(s.stores.SyncStates(), syncstate.New(s.stores.SyncStates()))
}
