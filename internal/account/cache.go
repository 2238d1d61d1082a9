// Package account keeps a periodically refreshed snapshot of broker
// account state and live broker positions, so sizing decisions and the
// status API never spend rate budget on reads.
package account

import (
	"context"
	"sync"
	"time"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/pkg/cache"
	"PulseTrade/pkg/logger"
)

var keyAccount = cache.GenerateKey("account", "snapshot")

// Snapshot is the cached broker view.
type Snapshot struct {
	Account   models.Account          `json:"account"`
	Positions []models.BrokerPosition `json:"positions"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// Cache serves account snapshots from memory, optionally mirrored to an
// external cache so restarts and sibling processes see the same view.
type Cache struct {
	broker domrepo.Broker
	store  cache.Service // optional
	ttl    time.Duration
	log    *logger.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewCache creates an account cache. store may be nil.
func NewCache(b domrepo.Broker, store cache.Service, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{broker: b, store: store, ttl: ttl, log: log}
}

// Refresh fetches fresh account and position state from the broker.
func (c *Cache) Refresh(ctx context.Context) error {
	acct, err := c.broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	positions, err := c.broker.ListPositions(ctx)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Account:   *acct,
		Positions: positions,
		FetchedAt: time.Now(),
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Set(ctx, keyAccount, snap, c.ttl); err != nil {
			c.log.Warn("account cache mirror failed", logger.Error(err))
		}
	}
	return nil
}

// Get returns the latest snapshot, falling back to the external cache
// when memory is cold (fresh process). ok is false when nothing has been
// fetched yet.
func (c *Cache) Get(ctx context.Context) (*Snapshot, bool) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap, true
	}
	if c.store == nil {
		return nil, false
	}
	var cached Snapshot
	if err := c.store.Get(ctx, keyAccount, &cached); err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.snap = &cached
	c.mu.Unlock()
	return &cached, true
}

// BuyingPower returns the cached buying power, 0 when no snapshot exists.
func (c *Cache) BuyingPower(ctx context.Context) float64 {
	snap, ok := c.Get(ctx)
	if !ok {
		return 0
	}
	return snap.Account.BuyingPower
}

// Stale reports whether the snapshot is older than the configured TTL.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap == nil || time.Since(c.snap.FetchedAt) > c.ttl
}
