package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/broker"
	"PulseTrade/pkg/logger"
)

func newCache(t *testing.T, b *broker.Paper, ttl time.Duration) *Cache {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return NewCache(b, nil, ttl, log)
}

func TestRefreshAndGet(t *testing.T) {
	paper := broker.NewPaper(50_000)
	c := newCache(t, paper, time.Minute)

	_, ok := c.Get(context.Background())
	assert.False(t, ok, "cold cache has no snapshot")
	assert.True(t, c.Stale())
	assert.Equal(t, 0.0, c.BuyingPower(context.Background()))

	require.NoError(t, c.Refresh(context.Background()))

	snap, ok := c.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, 50_000.0, snap.Account.Cash)
	assert.Equal(t, 50_000.0, c.BuyingPower(context.Background()))
	assert.False(t, c.Stale())
}

func TestRefreshSurfacesBrokerFailure(t *testing.T) {
	paper := broker.NewPaper(50_000)
	c := newCache(t, paper, time.Minute)

	paper.FailNext("get_account", broker.KindConnection, 1)
	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, broker.KindConnection, broker.KindOf(err))

	_, ok := c.Get(context.Background())
	assert.False(t, ok, "failed refresh leaves no partial snapshot")
}

func TestStaleAfterTTL(t *testing.T) {
	paper := broker.NewPaper(50_000)
	c := newCache(t, paper, time.Millisecond)

	require.NoError(t, c.Refresh(context.Background()))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, c.Stale())
}
