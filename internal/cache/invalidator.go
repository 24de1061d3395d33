package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

// ErrAlreadyStarted is returned when Start is called on a running invalidator.
var ErrAlreadyStarted = errors.New("invalidator already started")

// Invalidator drops feed cache entries whenever an active battle changes, so
// the next read refetches instead of serving a whole TTL of staleness.
// Redelivered change events are harmless: dropping an absent key is a no-op.
type Invalidator struct {
	cache  *Cache
	store  store.Store
	keys   []string
	logger *slog.Logger

	mu    sync.Mutex
	unsub func()
}

// NewInvalidator watches the battles collection and drops the provided keys
// on every change.
func NewInvalidator(c *Cache, st store.Store, logger *slog.Logger, keys ...string) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{cache: c, store: st, keys: keys, logger: logger}
}

// Start subscribes to battle changes. Only one subscription may be active;
// starting twice is an error.
func (i *Invalidator) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.unsub != nil {
		return ErrAlreadyStarted
	}

	q := store.Query{Filters: []store.Filter{
		{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive},
	}}
	unsub, err := i.store.Subscribe(ctx, store.CollectionBattles, q, func(store.Document) {
		for _, key := range i.keys {
			i.cache.Drop(key)
		}
	})
	if err != nil {
		return err
	}

	i.unsub = unsub
	i.logger.Debug("feed invalidator started", "keys", i.keys)
	return nil
}

// Stop tears down the subscription. Safe to call multiple times.
func (i *Invalidator) Stop() {
	i.mu.Lock()
	unsub := i.unsub
	i.unsub = nil
	i.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
