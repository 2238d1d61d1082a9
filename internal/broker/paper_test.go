package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

func TestPaperSubmitAndFill(t *testing.T) {
	p := NewPaper(100000)
	p.SetQuote("AAPL", 200)

	ord, err := p.SubmitOrder(context.Background(), models.OrderRequest{
		Symbol:   "AAPL",
		Side:     models.OrderBuy,
		Quantity: 10,
		Type:     models.OrderMarket,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ord.ID)
	assert.Equal(t, models.OrderStatusNew, ord.Status)

	got, err := p.GetOrderStatus(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, got.Status)
	assert.Equal(t, 10.0, got.FilledQty)
	assert.Equal(t, 200.0, got.FilledPrice)

	acct, err := p.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100000.0-2000.0, acct.Cash)

	positions, err := p.ListPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 10.0, positions[0].Quantity)
}

func TestPaperSellFlattens(t *testing.T) {
	p := NewPaper(10000)
	p.SetQuote("MSFT", 100)
	ctx := context.Background()

	buy, err := p.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "MSFT", Side: models.OrderBuy, Quantity: 5, Type: models.OrderMarket,
	})
	require.NoError(t, err)
	_, err = p.GetOrderStatus(ctx, buy.ID)
	require.NoError(t, err)

	p.SetQuote("MSFT", 110)
	sell, err := p.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "MSFT", Side: models.OrderSell, Quantity: 5, Type: models.OrderMarket,
	})
	require.NoError(t, err)
	_, err = p.GetOrderStatus(ctx, sell.ID)
	require.NoError(t, err)

	positions, err := p.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	acct, err := p.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0+5*10.0, acct.Cash)
}

func TestPaperFillDelay(t *testing.T) {
	p := NewPaper(10000)
	p.SetQuote("TSLA", 50)
	p.SetFillDelay(time.Hour)

	base := time.Now()
	p.now = func() time.Time { return base }

	ord, err := p.SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "TSLA", Side: models.OrderBuy, Quantity: 1, Type: models.OrderMarket,
	})
	require.NoError(t, err)

	got, err := p.GetOrderStatus(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusNew, got.Status)

	require.NoError(t, p.CancelOrder(context.Background(), ord.ID))
	got, err = p.GetOrderStatus(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, got.Status)

	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	got, err = p.GetOrderStatus(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, got.Status, "canceled orders stay canceled")
}

func TestPaperRejections(t *testing.T) {
	p := NewPaper(100)
	p.SetQuote("NVDA", 500)
	ctx := context.Background()

	_, err := p.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "NVDA", Side: models.OrderBuy, Quantity: 1, Type: models.OrderMarket,
	})
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.False(t, Retryable(err))

	_, err = p.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "NOPE", Side: models.OrderBuy, Quantity: 1, Type: models.OrderMarket,
	})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = p.SubmitOrder(ctx, models.OrderRequest{
		Symbol: "NVDA", Side: models.OrderBuy, Quantity: 0, Type: models.OrderMarket,
	})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = p.GetOrderStatus(ctx, "missing")
	assert.True(t, errors.Is(err, ErrUnknownOrder))
}

func TestPaperFailureInjection(t *testing.T) {
	p := NewPaper(10000)
	p.SetQuote("AAPL", 100)
	p.FailNext("submit_order", KindConnection, 2)
	ctx := context.Background()

	req := models.OrderRequest{
		Symbol: "AAPL", Side: models.OrderBuy, Quantity: 1, Type: models.OrderMarket,
	}
	for i := 0; i < 2; i++ {
		_, err := p.SubmitOrder(ctx, req)
		require.Error(t, err)
		assert.Equal(t, KindConnection, KindOf(err))
		assert.True(t, Retryable(err))
	}
	_, err := p.SubmitOrder(ctx, req)
	assert.NoError(t, err, "injection exhausted after n failures")
}

func TestPaperRecentBars(t *testing.T) {
	p := NewPaper(10000)
	p.SetQuote("SPY", 450)

	bars, err := p.GetRecentBars(context.Background(), "SPY", domrepo.TF5Min, 30)
	require.NoError(t, err)
	require.Len(t, bars, 30)
	for i, b := range bars {
		assert.Equal(t, "SPY", b.Symbol)
		assert.GreaterOrEqual(t, b.High, b.Low)
		assert.Positive(t, b.Volume)
		if i > 0 {
			assert.True(t, b.Timestamp.After(bars[i-1].Timestamp))
		}
	}
	assert.Equal(t, 450.0, bars[len(bars)-1].Close)
}
