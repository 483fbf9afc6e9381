package store

import (
	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/crypto"
)

type Stores struct {
	queries db.Querier
}

// NewStores binds every store to q, which is either the pool or an open transaction.
func NewStores(q db.Querier) *Stores {
	return &Stores{queries: q}
}

func (s *Stores) WebhookEvents() WebhookEventStore {
	return newWebhookEventStore(s.queries)
}

func (s *Stores) SyncStates() SyncStateStore {
	return newSyncStateStore(s.queries)
}

func (s *Stores) Sprints() SprintStore {
	return newSprintStore(s.queries)
}

func (s *Stores) Boards() BoardStore {
	return newBoardStore(s.queries)
}

func (s *Stores) QueueItems() QueueItemStore {
	return newQueueItemStore(s.queries)
}

func (s *Stores) Credentials(codec crypto.Codec) CredentialStore {
	return newCredentialStore(s.queries, codec)
}
