package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
	"PulseTrade/internal/risk"
)

func TestRateLimitedConsumesBudget(t *testing.T) {
	paper := NewPaper(100000)
	paper.SetQuote("AAPL", 100)
	budget := risk.NewRateBudget(10, time.Minute, nil)
	b := NewRateLimited(paper, budget)
	ctx := context.Background()

	_, err := b.GetAccount(ctx)
	require.NoError(t, err)
	_, err = b.ListPositions(ctx)
	require.NoError(t, err)
	ord, err := b.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderBuy, Quantity: 1, Type: models.OrderMarket,
	})
	require.NoError(t, err)
	_, err = b.GetOrderStatus(ctx, ord.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, budget.InFlight())
}

func TestRateLimitedHonorsCancellation(t *testing.T) {
	paper := NewPaper(100000)
	paper.SetQuote("AAPL", 100)
	budget := risk.NewRateBudget(1, time.Hour, nil)
	b := NewRateLimited(paper, budget)

	require.True(t, budget.TryAcquire(), "exhaust the single slot")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.GetAccount(ctx)
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
}
